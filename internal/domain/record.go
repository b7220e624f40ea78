package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxTreatment is the holding-period bucket of a closed lot.
type TaxTreatment string

const (
	TreatmentShortTerm TaxTreatment = "SHORT_TERM"
	TreatmentLongTerm  TaxTreatment = "LONG_TERM"
)

// Code returns the tax_type tag used in stored tax records.
func (t TaxTreatment) Code() string {
	switch t {
	case TreatmentShortTerm:
		return "ST-CG"
	case TreatmentLongTerm:
		return "LT-CG"
	}
	return ""
}

// ParseTreatment is the inverse of Code, also accepting the long names.
func ParseTreatment(s string) (TaxTreatment, bool) {
	switch s {
	case "ST-CG", string(TreatmentShortTerm):
		return TreatmentShortTerm, true
	case "LT-CG", string(TreatmentLongTerm):
		return TreatmentLongTerm, true
	}
	return "", false
}

// ClosedLotRecord is the gain or loss from matching part of a sell against
// part of a lot. HoldingPeriodDays and Treatment are zero until the record
// has been classified.
type ClosedLotRecord struct {
	ID                string
	SellFillID        string
	LotID             string
	Asset             string
	Method            Method
	Quantity          decimal.Decimal
	CostBasis         decimal.Decimal
	Proceeds          decimal.Decimal
	GainLoss          decimal.Decimal
	AcquiredAt        time.Time
	DisposedAt        time.Time
	HoldingPeriodDays int
	Treatment         TaxTreatment
}

// IsClassified reports whether a tax treatment has been assigned.
func (r ClosedLotRecord) IsClassified() bool {
	return r.Treatment == TreatmentShortTerm || r.Treatment == TreatmentLongTerm
}
