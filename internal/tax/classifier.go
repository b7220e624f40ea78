// Package tax assigns holding periods and short/long-term treatment to
// closed-lot records.
package tax

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/pnlledger/internal/domain"
)

// DefaultLongTermAfterDays is the US threshold: a lot held more than one
// year (366 days or more) is long-term.
const DefaultLongTermAfterDays = 365

// Classifier labels closed-lot records with their tax treatment.
type Classifier struct {
	// LongTermAfterDays is the holding period a record must exceed to be
	// long-term. Zero means DefaultLongTermAfterDays.
	LongTermAfterDays int
	// SkipInvalid makes ClassifyAll log and drop records with bad
	// timestamps instead of failing.
	SkipInvalid bool
	Logger      *slog.Logger
}

// NewClassifier creates a Classifier with the given threshold.
func NewClassifier(longTermAfterDays int, logger *slog.Logger) *Classifier {
	return &Classifier{LongTermAfterDays: longTermAfterDays, Logger: logger}
}

func (c *Classifier) threshold() int {
	if c.LongTermAfterDays <= 0 {
		return DefaultLongTermAfterDays
	}
	return c.LongTermAfterDays
}

func (c *Classifier) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// HoldingDays returns the number of whole UTC calendar days between the
// acquisition and disposal dates. Times of day are ignored.
func HoldingDays(acquired, disposed time.Time) int {
	return int(utcDate(disposed).Sub(utcDate(acquired)).Hours() / 24)
}

func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Classify returns a copy of r with HoldingPeriodDays and Treatment set.
func (c *Classifier) Classify(r domain.ClosedLotRecord) (domain.ClosedLotRecord, error) {
	if r.AcquiredAt.IsZero() || r.DisposedAt.IsZero() {
		return r, fmt.Errorf("%w: record %s: missing acquisition or disposal time", domain.ErrInvalidTimestamp, r.ID)
	}
	if r.DisposedAt.Before(r.AcquiredAt) {
		return r, fmt.Errorf("%w: record %s: disposed %s before acquired %s",
			domain.ErrInvalidTimestamp, r.ID,
			r.DisposedAt.UTC().Format(time.RFC3339), r.AcquiredAt.UTC().Format(time.RFC3339))
	}

	r.HoldingPeriodDays = HoldingDays(r.AcquiredAt, r.DisposedAt)
	if r.HoldingPeriodDays > c.threshold() {
		r.Treatment = domain.TreatmentLongTerm
	} else {
		r.Treatment = domain.TreatmentShortTerm
	}
	return r, nil
}

// ClassifyAll classifies records in order. It stops at the first invalid
// record unless SkipInvalid is set.
func (c *Classifier) ClassifyAll(records []domain.ClosedLotRecord) ([]domain.ClosedLotRecord, error) {
	out := make([]domain.ClosedLotRecord, 0, len(records))
	for _, r := range records {
		classified, err := c.Classify(r)
		if err != nil {
			if !c.SkipInvalid {
				return nil, err
			}
			c.logger().Warn("skipping unclassifiable record",
				slog.String("record_id", r.ID),
				slog.String("sell_fill_id", r.SellFillID),
				slog.String("lot_id", r.LotID),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, classified)
	}
	return out, nil
}
