package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Method is the cost-basis accounting method used to pick the lots a sell
// closes.
type Method string

const (
	MethodFIFO       Method = "fifo"
	MethodLIFO       Method = "lifo"
	MethodSpecificID Method = "specific_id"
)

// ParseMethod accepts the canonical names and the labels written to tax
// records ("FIFO", "LIFO", "SpecID").
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fifo":
		return MethodFIFO, nil
	case "lifo":
		return MethodLIFO, nil
	case "specific_id", "specid", "spec_id", "specific-id":
		return MethodSpecificID, nil
	}
	return "", fmt.Errorf("%w: %q, must be one of: fifo, lifo, specific_id", ErrInvalidMethod, s)
}

// Label is the short form stored in the cost_basis_method column.
func (m Method) Label() string {
	switch m {
	case MethodFIFO:
		return "FIFO"
	case MethodLIFO:
		return "LIFO"
	case MethodSpecificID:
		return "SpecID"
	}
	return string(m)
}

// Lot is an open inventory unit created by a buy fill. Its ID is the
// originating fill's ID.
type Lot struct {
	ID                string
	Asset             string
	Seq               uint64 // tie-break for equal acquisition times
	OriginalQuantity  decimal.Decimal
	RemainingQuantity decimal.Decimal
	UnitCost          decimal.Decimal // price + fee per unit
	RemainingCost     decimal.Decimal // cost basis attached to RemainingQuantity
	AcquiredAt        time.Time
}

// IsClosed reports whether the lot has been fully consumed.
func (l Lot) IsClosed() bool {
	return !l.RemainingQuantity.IsPositive()
}

// LotSelection designates how much of one lot a specific-identification
// sell closes.
type LotSelection struct {
	LotID    string
	Quantity decimal.Decimal
}

// OpenPosition summarizes the open lots of one asset.
type OpenPosition struct {
	Asset            string
	Quantity         decimal.Decimal
	CostBasis        decimal.Decimal
	AverageCost      decimal.Decimal
	LotCount         int
	OldestAcquiredAt time.Time
}
