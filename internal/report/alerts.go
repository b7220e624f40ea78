package report

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/pnlledger/internal/domain"
)

// AlertKind identifies which rule raised an alert.
type AlertKind string

const (
	AlertLargeLoss AlertKind = "large_loss"
	AlertLossRate  AlertKind = "loss_rate"
)

// Alert is a warning raised on a daily summary.
type Alert struct {
	Kind    AlertKind `json:"kind"`
	Message string    `json:"message"`
}

// AlertPolicy holds the thresholds the alert rules compare against.
type AlertPolicy struct {
	// LossThreshold raises AlertLargeLoss when realized P&L is below it.
	LossThreshold decimal.Decimal
	// MinTrades is the trade count a day must exceed before a losing
	// majority raises AlertLossRate.
	MinTrades int
}

// DefaultAlertPolicy alerts on a day below -100 or on more losses than
// wins over more than 10 trades.
func DefaultAlertPolicy() AlertPolicy {
	return AlertPolicy{LossThreshold: decimal.NewFromInt(-100), MinTrades: 10}
}

// Alerts evaluates the policy against one day.
func Alerts(s DaySummary, p AlertPolicy) []Alert {
	alerts := []Alert{}
	if s.RealizedPnL.LessThan(p.LossThreshold) {
		alerts = append(alerts, Alert{
			Kind:    AlertLargeLoss,
			Message: fmt.Sprintf("large loss: %s", domain.FormatMoney(s.RealizedPnL)),
		})
	}
	if s.LossCount > s.WinCount && s.TradeCount > p.MinTrades {
		alerts = append(alerts, Alert{
			Kind: AlertLossRate,
			Message: fmt.Sprintf("loss rate exceeds 50%% (%d losses, %d wins over %d trades), review strategy",
				s.LossCount, s.WinCount, s.TradeCount),
		})
	}
	return alerts
}
