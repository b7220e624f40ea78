package main

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/efreitasn/pnlledger/internal/service"
)

// selectionEntry is one lot designation in a selections file:
//
//	sell-fill-id:
//	  - lot_id: buy-fill-id
//	    quantity: "0.25"
type selectionEntry struct {
	LotID    string `yaml:"lot_id"`
	Quantity string `yaml:"quantity"`
}

// loadSelections reads a YAML file mapping sell fill IDs to the lots they
// close. Quantities keep their literal text.
func loadSelections(path string) (map[string][]service.SelectionInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read selections: %w", err)
	}
	var raw map[string][]selectionEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse selections %s: %w", path, err)
	}
	out := make(map[string][]service.SelectionInput, len(raw))
	for sellID, entries := range raw {
		inputs := make([]service.SelectionInput, len(entries))
		for i, e := range entries {
			inputs[i] = service.SelectionInput{LotID: e.LotID, Quantity: e.Quantity}
		}
		out[sellID] = inputs
	}
	return out, nil
}

// sortedKeys returns the sell IDs in a stable order for saving.
func sortedKeys(m map[string][]service.SelectionInput) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
