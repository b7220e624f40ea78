package report

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/efreitasn/pnlledger/internal/domain"
)

func drawRecords(t *rapid.T) []domain.ClosedLotRecord {
	n := rapid.IntRange(0, 50).Draw(t, "n")
	records := make([]domain.ClosedLotRecord, n)
	for i := range records {
		disposed := day1.Add(time.Duration(rapid.IntRange(0, 24*90).Draw(t, "hour")) * time.Hour)
		gain := decimal.New(rapid.Int64Range(-100_000, 100_000).Draw(t, "gain"), -2)
		treatment := rapid.SampledFrom([]domain.TaxTreatment{domain.TreatmentShortTerm, domain.TreatmentLongTerm}).Draw(t, "treatment")
		records[i] = closed(fmt.Sprintf("r%d", i), disposed, gain.String(), treatment)
	}
	return records
}

// The daily series partitions the records: counts and P&L add up to the
// totals, and the last cumulative value is the overall P&L.
func TestProperty_DailySeriesPartitionsRecords(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		records := drawRecords(t)
		series := DailySeries(records)

		total := decimal.Zero
		for _, r := range records {
			total = total.Add(r.GainLoss)
		}
		count := 0
		for i, s := range series {
			if s.WinCount+s.LossCount+s.ZeroCount != s.TradeCount {
				t.Fatalf("day %v: counts do not add up", s.Date)
			}
			if i > 0 && !series[i-1].Date.Before(s.Date) {
				t.Fatalf("series not strictly ascending at %d", i)
			}
			if one := DailySummary(records, s.Date); !one.RealizedPnL.Equal(s.RealizedPnL) || one.TradeCount != s.TradeCount {
				t.Fatalf("day %v: series and single-day summary disagree", s.Date)
			}
			count += s.TradeCount
		}
		if count != len(records) {
			t.Fatalf("series covers %d of %d records", count, len(records))
		}
		if len(series) > 0 && !series[len(series)-1].CumulativePnL.Equal(total) {
			t.Fatalf("final cumulative %s, want %s", series[len(series)-1].CumulativePnL, total)
		}
	})
}

// Net capital gain equals the sum of the year's gains and losses.
func TestProperty_AnnualNetIsSumOfGains(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		records := drawRecords(t)
		s, err := AnnualTaxSummary(records, 2024)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := decimal.Zero
		for _, r := range records {
			want = want.Add(r.GainLoss)
		}
		if !s.NetCapitalGain.Equal(want) {
			t.Fatalf("NetCapitalGain = %s, want %s", s.NetCapitalGain, want)
		}
		if !s.ShortTerm.Net.Add(s.LongTerm.Net).Equal(want) {
			t.Fatal("bucket nets do not add up")
		}
		if s.TotalLosses.IsPositive() || s.TotalGains.IsNegative() {
			t.Fatalf("gains %s losses %s have the wrong sign", s.TotalGains, s.TotalLosses)
		}
	})
}
