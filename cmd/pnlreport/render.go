package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/pnlledger/internal/domain"
	"github.com/efreitasn/pnlledger/internal/exchange"
	"github.com/efreitasn/pnlledger/internal/export"
)

var (
	borderStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63"))

	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func row(label, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-18s", label)) + value
}

func money(d decimal.Decimal) string {
	s := domain.FormatMoney(d)
	switch d.Sign() {
	case 1:
		return successStyle.Render(s)
	case -1:
		return errorStyle.Render(s)
	}
	return s
}

func panel(title string, lines ...string) string {
	return borderStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(title),
		strings.Join(lines, "\n"),
	))
}

func renderDaily(r export.DailyReport) string {
	lines := []string{
		row("Method", r.Method),
		row("Realized P&L", money(r.PnL.RealizedPnL)),
		row("Cumulative P&L", money(r.PnL.TotalPnL)),
		row("Proceeds", domain.FormatMoney(r.PnL.Proceeds)),
		row("Cost basis", domain.FormatMoney(r.PnL.CostBasis)),
		row("Trades", fmt.Sprintf("%d (%d won, %d lost, %d flat)",
			r.PnL.TradesCount, r.PnL.WinCount, r.PnL.LossCount, r.PnL.BreakevenCount)),
		row("Win rate", r.Summary.WinRate.StringFixed(2)+"%"),
	}
	for _, a := range r.Alerts {
		lines = append(lines, warningStyle.Render("! "+a.Message))
	}
	return panel("Daily P&L "+r.Date, lines...)
}

func renderTax(r export.TaxReport) string {
	return panel(fmt.Sprintf("Tax year %d", r.Year),
		row("Method", r.Method),
		row("Short-term net", fmt.Sprintf("%s (%d)", money(r.ShortTerm.Net), r.ShortTerm.Count)),
		row("Long-term net", fmt.Sprintf("%s (%d)", money(r.LongTerm.Net), r.LongTerm.Count)),
		row("Total gains", money(r.TotalGains)),
		row("Total losses", money(r.TotalLosses)),
		row("Net capital gain", money(r.NetCapitalGain)),
	)
}

func renderAccounts(accounts []exchange.Account) string {
	if len(accounts) == 0 {
		return panel("Exchange connection OK", labelStyle.Render("no accounts"))
	}
	lines := make([]string, len(accounts))
	for i, a := range accounts {
		lines[i] = row(a.Currency, a.Available.String())
	}
	return panel("Exchange connection OK", lines...)
}
