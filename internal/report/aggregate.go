// Package report aggregates closed-lot records into daily P&L summaries
// and annual tax summaries.
package report

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/pnlledger/internal/domain"
)

// DaySummary is the realized P&L of the records disposed on one UTC date.
type DaySummary struct {
	Date        time.Time // midnight UTC
	TradeCount  int
	WinCount    int
	LossCount   int
	ZeroCount   int
	RealizedPnL decimal.Decimal
	Proceeds    decimal.Decimal
	CostBasis   decimal.Decimal
	// CumulativePnL is the running realized P&L up to and including Date.
	// Only DailySeries fills it in; DailySummary leaves it equal to
	// RealizedPnL.
	CumulativePnL decimal.Decimal
}

// WinRate returns the percentage of winning records, or zero when there
// were none.
func (s DaySummary) WinRate() decimal.Decimal {
	if s.TradeCount == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(s.WinCount)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(s.TradeCount)), domain.Scale)
}

// Day truncates t to its calendar date at midnight UTC, keeping the
// year, month and day as they read in t's own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func disposalDay(r domain.ClosedLotRecord) time.Time {
	return Day(r.DisposedAt.UTC())
}

func emptyDay(date time.Time) DaySummary {
	return DaySummary{
		Date:          date,
		RealizedPnL:   decimal.Zero,
		Proceeds:      decimal.Zero,
		CostBasis:     decimal.Zero,
		CumulativePnL: decimal.Zero,
	}
}

func (s *DaySummary) add(r domain.ClosedLotRecord) {
	s.TradeCount++
	switch r.GainLoss.Sign() {
	case 1:
		s.WinCount++
	case -1:
		s.LossCount++
	default:
		s.ZeroCount++
	}
	s.RealizedPnL = s.RealizedPnL.Add(r.GainLoss)
	s.Proceeds = s.Proceeds.Add(r.Proceeds)
	s.CostBasis = s.CostBasis.Add(r.CostBasis)
}

// DailySummary aggregates the records disposed on date's calendar day.
// Disposal times are bucketed by their UTC date. A day without records
// yields a summary with zero counts.
func DailySummary(records []domain.ClosedLotRecord, date time.Time) DaySummary {
	day := Day(date)
	s := emptyDay(day)
	for _, r := range records {
		if disposalDay(r).Equal(day) {
			s.add(r)
		}
	}
	s.CumulativePnL = s.RealizedPnL
	return s
}

// DailySeries returns one summary per disposal date, ascending, each
// carrying the cumulative realized P&L.
func DailySeries(records []domain.ClosedLotRecord) []DaySummary {
	byDay := make(map[time.Time]*DaySummary)
	for _, r := range records {
		day := disposalDay(r)
		s, ok := byDay[day]
		if !ok {
			d := emptyDay(day)
			s = &d
			byDay[day] = s
		}
		s.add(r)
	}

	series := make([]DaySummary, 0, len(byDay))
	for _, s := range byDay {
		series = append(series, *s)
	}
	slices.SortFunc(series, func(a, b DaySummary) int {
		return a.Date.Compare(b.Date)
	})

	running := decimal.Zero
	for i := range series {
		running = running.Add(series[i].RealizedPnL)
		series[i].CumulativePnL = running
	}
	return series
}

// TermSummary totals one holding-period bucket. Losses is zero or
// negative.
type TermSummary struct {
	Gains  decimal.Decimal
	Losses decimal.Decimal
	Net    decimal.Decimal
	Count  int
}

func newTermSummary() TermSummary {
	return TermSummary{Gains: decimal.Zero, Losses: decimal.Zero, Net: decimal.Zero}
}

func (t *TermSummary) add(r domain.ClosedLotRecord) {
	t.Count++
	if r.GainLoss.IsPositive() {
		t.Gains = t.Gains.Add(r.GainLoss)
	} else {
		t.Losses = t.Losses.Add(r.GainLoss)
	}
	t.Net = t.Net.Add(r.GainLoss)
}

// AnnualSummary is the capital-gains summary of one tax year.
type AnnualSummary struct {
	Year           int
	ShortTerm      TermSummary
	LongTerm       TermSummary
	TotalGains     decimal.Decimal
	TotalLosses    decimal.Decimal
	NetCapitalGain decimal.Decimal
	Records        []domain.ClosedLotRecord
}

// AnnualTaxSummary aggregates the classified records disposed during year
// (UTC). Any unclassified record in that year fails the whole summary.
func AnnualTaxSummary(records []domain.ClosedLotRecord, year int) (AnnualSummary, error) {
	s := AnnualSummary{
		Year:      year,
		ShortTerm: newTermSummary(),
		LongTerm:  newTermSummary(),
		Records:   []domain.ClosedLotRecord{},
	}
	for _, r := range records {
		if r.DisposedAt.UTC().Year() != year {
			continue
		}
		switch r.Treatment {
		case domain.TreatmentShortTerm:
			s.ShortTerm.add(r)
		case domain.TreatmentLongTerm:
			s.LongTerm.add(r)
		default:
			return AnnualSummary{}, fmt.Errorf("%w: record %s (sell %s, lot %s)",
				domain.ErrUnclassifiedRecord, r.ID, r.SellFillID, r.LotID)
		}
		s.Records = append(s.Records, r)
	}
	s.TotalGains = s.ShortTerm.Gains.Add(s.LongTerm.Gains)
	s.TotalLosses = s.ShortTerm.Losses.Add(s.LongTerm.Losses)
	s.NetCapitalGain = s.TotalGains.Add(s.TotalLosses)
	return s, nil
}
