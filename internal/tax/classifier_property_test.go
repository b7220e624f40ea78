package tax

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/efreitasn/pnlledger/internal/domain"
)

// Treatment is long-term exactly when the holding period exceeds the
// threshold, and the holding period never depends on the time of day.
func TestProperty_TreatmentFollowsThreshold(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		threshold := rapid.IntRange(1, 1000).Draw(t, "threshold")
		days := rapid.IntRange(0, 2000).Draw(t, "days")
		acqOffset := time.Duration(rapid.IntRange(0, 86399).Draw(t, "acqSeconds")) * time.Second
		dispOffset := time.Duration(rapid.IntRange(0, 86399).Draw(t, "dispSeconds")) * time.Second
		if days == 0 && dispOffset < acqOffset {
			dispOffset = acqOffset
		}

		start := date(2015, 1, 1).AddDate(0, 0, rapid.IntRange(0, 3650).Draw(t, "startDay"))
		acquired := start.Add(acqOffset)
		disposed := start.AddDate(0, 0, days).Add(dispOffset)

		c := NewClassifier(threshold, nil)
		got, err := c.Classify(domain.ClosedLotRecord{ID: "r", AcquiredAt: acquired, DisposedAt: disposed})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.HoldingPeriodDays != days {
			t.Fatalf("HoldingPeriodDays = %d, want %d", got.HoldingPeriodDays, days)
		}
		want := domain.TreatmentShortTerm
		if days > threshold {
			want = domain.TreatmentLongTerm
		}
		if got.Treatment != want {
			t.Fatalf("days=%d threshold=%d: got %s, want %s", days, threshold, got.Treatment, want)
		}
	})
}
