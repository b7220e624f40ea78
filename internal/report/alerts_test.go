package report

import (
	"testing"
)

func TestAlerts(t *testing.T) {
	tests := []struct {
		name    string
		summary DaySummary
		want    []AlertKind
	}{
		{
			name:    "quiet day",
			summary: DaySummary{TradeCount: 3, WinCount: 2, LossCount: 1, RealizedPnL: dec("40")},
			want:    nil,
		},
		{
			name:    "exactly at threshold",
			summary: DaySummary{TradeCount: 1, LossCount: 1, RealizedPnL: dec("-100")},
			want:    nil,
		},
		{
			name:    "large loss",
			summary: DaySummary{TradeCount: 2, LossCount: 2, RealizedPnL: dec("-100.01")},
			want:    []AlertKind{AlertLargeLoss},
		},
		{
			name:    "losing majority over ten trades",
			summary: DaySummary{TradeCount: 11, WinCount: 5, LossCount: 6, RealizedPnL: dec("-1")},
			want:    []AlertKind{AlertLossRate},
		},
		{
			name:    "losing majority at ten trades",
			summary: DaySummary{TradeCount: 10, WinCount: 4, LossCount: 6, RealizedPnL: dec("-1")},
			want:    nil,
		},
		{
			name:    "both",
			summary: DaySummary{TradeCount: 12, WinCount: 1, LossCount: 11, RealizedPnL: dec("-500")},
			want:    []AlertKind{AlertLargeLoss, AlertLossRate},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Alerts(tt.summary, DefaultAlertPolicy())
			if len(got) != len(tt.want) {
				t.Fatalf("got %d alerts %+v, want %v", len(got), got, tt.want)
			}
			for i, kind := range tt.want {
				if got[i].Kind != kind {
					t.Errorf("alert %d = %s, want %s", i, got[i].Kind, kind)
				}
				if got[i].Message == "" {
					t.Errorf("alert %d has no message", i)
				}
			}
		})
	}
}

func TestAlerts_LargeLossMessage(t *testing.T) {
	got := Alerts(DaySummary{RealizedPnL: dec("-250.456")}, DefaultAlertPolicy())
	if len(got) != 1 || got[0].Message != "large loss: -250.46" {
		t.Errorf("got %+v", got)
	}
}
