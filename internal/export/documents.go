package export

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/pnlledger/internal/domain"
	"github.com/efreitasn/pnlledger/internal/report"
)

// DailyReport is the exported daily P&L document.
type DailyReport struct {
	Date        string         `json:"date"`
	GeneratedAt time.Time      `json:"timestamp"`
	Method      string         `json:"cost_basis_method"`
	PnL         DailyPnL       `json:"pnl"`
	Summary     DailyOutcome   `json:"summary"`
	Alerts      []report.Alert `json:"alerts"`
}

// DailyPnL mirrors one row of the daily_pnl table.
type DailyPnL struct {
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	Proceeds       decimal.Decimal `json:"proceeds"`
	CostBasis      decimal.Decimal `json:"cost_basis"`
	TradesCount    int             `json:"trades_count"`
	WinCount       int             `json:"win_count"`
	LossCount      int             `json:"loss_count"`
	BreakevenCount int             `json:"breakeven_count"`
}

// DailyOutcome is the headline of a daily report.
type DailyOutcome struct {
	Status  string          `json:"status"` // win, loss or flat
	Trades  int             `json:"trades"`
	WinRate decimal.Decimal `json:"win_rate"`
}

// NewDailyReport builds the exported document for one day.
func NewDailyReport(s report.DaySummary, alerts []report.Alert, method domain.Method, now time.Time) DailyReport {
	status := "flat"
	switch s.RealizedPnL.Sign() {
	case 1:
		status = "win"
	case -1:
		status = "loss"
	}
	if alerts == nil {
		alerts = []report.Alert{}
	}
	return DailyReport{
		Date:        s.Date.Format(time.DateOnly),
		GeneratedAt: now.UTC(),
		Method:      method.Label(),
		PnL: DailyPnL{
			RealizedPnL:    s.RealizedPnL,
			TotalPnL:       s.CumulativePnL,
			Proceeds:       s.Proceeds,
			CostBasis:      s.CostBasis,
			TradesCount:    s.TradeCount,
			WinCount:       s.WinCount,
			LossCount:      s.LossCount,
			BreakevenCount: s.ZeroCount,
		},
		Summary: DailyOutcome{
			Status:  status,
			Trades:  s.TradeCount,
			WinRate: s.WinRate().Round(2),
		},
		Alerts: alerts,
	}
}

// TaxReport is the exported annual capital-gains document.
type TaxReport struct {
	Year           int             `json:"year"`
	Method         string          `json:"cost_basis_method"`
	ShortTerm      TermTotals      `json:"short_term"`
	LongTerm       TermTotals      `json:"long_term"`
	TotalGains     decimal.Decimal `json:"total_gains"`
	TotalLosses    decimal.Decimal `json:"total_losses"`
	NetCapitalGain decimal.Decimal `json:"net_capital_gain"`
	Trades         []TaxTrade      `json:"trades"`
}

// TermTotals is one holding-period bucket of a TaxReport.
type TermTotals struct {
	Gains  decimal.Decimal `json:"gains"`
	Losses decimal.Decimal `json:"losses"`
	Net    decimal.Decimal `json:"net"`
	Count  int             `json:"count"`
}

// TaxTrade is one closed lot in a TaxReport.
type TaxTrade struct {
	ID            string          `json:"id"`
	SellFillID    string          `json:"trade_id"`
	LotID         string          `json:"lot_id"`
	Asset         string          `json:"asset"`
	Quantity      decimal.Decimal `json:"quantity"`
	DateAcquired  string          `json:"date_acquired"`
	DateSold      string          `json:"date_sold"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	Proceeds      decimal.Decimal `json:"sale_price"`
	GainLoss      decimal.Decimal `json:"gain_loss"`
	TaxType       string          `json:"tax_type"`
	HoldingPeriod int             `json:"holding_period"`
}

// NewTaxReport builds the exported document for an annual summary.
func NewTaxReport(s report.AnnualSummary, method domain.Method) TaxReport {
	trades := make([]TaxTrade, 0, len(s.Records))
	for _, r := range s.Records {
		trades = append(trades, TaxTrade{
			ID:            r.ID,
			SellFillID:    r.SellFillID,
			LotID:         r.LotID,
			Asset:         r.Asset,
			Quantity:      r.Quantity,
			DateAcquired:  r.AcquiredAt.UTC().Format(time.DateOnly),
			DateSold:      r.DisposedAt.UTC().Format(time.DateOnly),
			CostBasis:     r.CostBasis,
			Proceeds:      r.Proceeds,
			GainLoss:      r.GainLoss,
			TaxType:       r.Treatment.Code(),
			HoldingPeriod: r.HoldingPeriodDays,
		})
	}
	return TaxReport{
		Year:           s.Year,
		Method:         method.Label(),
		ShortTerm:      termTotals(s.ShortTerm),
		LongTerm:       termTotals(s.LongTerm),
		TotalGains:     s.TotalGains,
		TotalLosses:    s.TotalLosses,
		NetCapitalGain: s.NetCapitalGain,
		Trades:         trades,
	}
}

func termTotals(t report.TermSummary) TermTotals {
	return TermTotals{Gains: t.Gains, Losses: t.Losses, Net: t.Net, Count: t.Count}
}
