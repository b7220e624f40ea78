// Package export writes reports as Form 8949 CSV, flattened CSV and
// indented JSON.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/efreitasn/pnlledger/internal/domain"
)

// form8949Header follows the columns of IRS Form 8949, with the Part
// (I short-term, II long-term) the row belongs to.
var form8949Header = []string{
	"Description of property",
	"Date acquired",
	"Date sold",
	"Proceeds",
	"Cost or other basis",
	"Gain or (loss)",
	"Part",
	"Code(s)",
}

const form8949Date = "01/02/2006"

// WriteForm8949 writes one CSV row per closed lot. Every record must be
// classified.
func WriteForm8949(w io.Writer, records []domain.ClosedLotRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(form8949Header); err != nil {
		return err
	}
	for _, r := range records {
		var part string
		switch r.Treatment {
		case domain.TreatmentShortTerm:
			part = "I"
		case domain.TreatmentLongTerm:
			part = "II"
		default:
			return fmt.Errorf("%w: record %s", domain.ErrUnclassifiedRecord, r.ID)
		}
		row := []string{
			fmt.Sprintf("%s %s", r.Quantity.String(), r.Asset),
			r.AcquiredAt.UTC().Format(form8949Date),
			r.DisposedAt.UTC().Format(form8949Date),
			r.Proceeds.String(),
			r.CostBasis.String(),
			r.GainLoss.String(),
			part,
			"",
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteFlatCSV writes v as a two-row CSV: flattened keys, then values.
// Nested objects are joined with "_"; arrays are kept as compact JSON.
func WriteFlatCSV(w io.Writer, v any) error {
	keys, values, err := Flatten(v)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(keys); err != nil {
		return err
	}
	if err := cw.Write(values); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// Flatten converts v's JSON form into parallel key and value lists,
// preserving field order.
func Flatten(v any) (keys, values []string, err error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	f := &flattener{dec: dec}
	if err := f.value(""); err != nil {
		return nil, nil, err
	}
	return f.keys, f.values, nil
}

type flattener struct {
	dec    *json.Decoder
	keys   []string
	values []string
}

func (f *flattener) emit(key, value string) {
	f.keys = append(f.keys, key)
	f.values = append(f.values, value)
}

func (f *flattener) value(key string) error {
	tok, err := f.dec.Token()
	if err != nil {
		return err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			for f.dec.More() {
				kt, err := f.dec.Token()
				if err != nil {
					return err
				}
				child := kt.(string)
				if key != "" {
					child = key + "_" + child
				}
				if err := f.value(child); err != nil {
					return err
				}
			}
			_, err := f.dec.Token() // '}'
			return err
		case '[':
			var items []string
			for f.dec.More() {
				var raw json.RawMessage
				if err := f.dec.Decode(&raw); err != nil {
					return err
				}
				items = append(items, string(raw))
			}
			if _, err := f.dec.Token(); err != nil { // ']'
				return err
			}
			f.emit(key, "["+strings.Join(items, ",")+"]")
		}
	case string:
		f.emit(key, t)
	case json.Number:
		f.emit(key, t.String())
	case bool:
		f.emit(key, strconv.FormatBool(t))
	case nil:
		f.emit(key, "")
	}
	return nil
}

// Exporter writes report files into Dir.
type Exporter struct {
	Dir    string
	Logger *slog.Logger
}

// NewExporter creates an Exporter for dir.
func NewExporter(dir string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exporter{Dir: dir, Logger: logger}
}

// DailyCSV writes daily_report_<date>.csv.
func (e *Exporter) DailyCSV(r DailyReport) (string, error) {
	return e.write(fmt.Sprintf("daily_report_%s.csv", r.Date), func(w io.Writer) error {
		return WriteFlatCSV(w, r)
	})
}

// DailyJSON writes daily_report_<date>.json.
func (e *Exporter) DailyJSON(r DailyReport) (string, error) {
	return e.write(fmt.Sprintf("daily_report_%s.json", r.Date), func(w io.Writer) error {
		return WriteJSON(w, r)
	})
}

// TaxJSON writes tax_report_<year>.json.
func (e *Exporter) TaxJSON(r TaxReport) (string, error) {
	return e.write(fmt.Sprintf("tax_report_%d.json", r.Year), func(w io.Writer) error {
		return WriteJSON(w, r)
	})
}

// Form8949 writes form_8949_<year>.csv.
func (e *Exporter) Form8949(year int, records []domain.ClosedLotRecord) (string, error) {
	return e.write(fmt.Sprintf("form_8949_%d.csv", year), func(w io.Writer) error {
		return WriteForm8949(w, records)
	})
}

// write renders into a temporary file and renames it into place. A failed
// render leaves nothing at the target path.
func (e *Exporter) write(name string, render func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(e.Dir, name)
	tmp, err := os.CreateTemp(e.Dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if err := render(tmp); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename %s: %w", name, err)
	}
	e.Logger.Info("report exported", slog.String("path", path))
	return path, nil
}
