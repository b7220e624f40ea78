package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/pnlledger/internal/domain"
	"github.com/efreitasn/pnlledger/internal/exchange"
	"github.com/efreitasn/pnlledger/internal/export"
	"github.com/efreitasn/pnlledger/internal/report"
)

// isolate points every setting at a temp dir and clears exchange
// credentials.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENV_FILE", filepath.Join(dir, "absent.env"))
	t.Setenv("EXPORT_DIR", filepath.Join(dir, "exports"))
	t.Setenv("DB_PATH", "")
	t.Setenv("LOG_FILE", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("COST_BASIS_METHOD", "")
	t.Setenv("CB_API_KEY", "")
	t.Setenv("CB_API_SECRET", "")
	return dir
}

func TestRun_CheckWithoutCredentials(t *testing.T) {
	isolate(t)
	err := run(context.Background(), options{check: true}, &bytes.Buffer{})
	if !errors.Is(err, domain.ErrExchangeNotConfigured) {
		t.Fatalf("expected ErrExchangeNotConfigured, got %v", err)
	}
}

func TestRun_DailyWritesExports(t *testing.T) {
	dir := isolate(t)
	var out bytes.Buffer

	if err := run(context.Background(), options{date: "2024-01-12"}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, name := range []string{"daily_report_2024-01-12.csv", "daily_report_2024-01-12.json"} {
		if _, err := os.Stat(filepath.Join(dir, "exports", name)); err != nil {
			t.Errorf("missing export %s: %v", name, err)
		}
	}
	if !strings.Contains(out.String(), "Daily P&L 2024-01-12") {
		t.Errorf("output missing panel title:\n%s", out.String())
	}
}

func TestRun_TaxWithSelections(t *testing.T) {
	dir := isolate(t)
	sel := writeFile(t, "sel.yaml", "s1:\n  - lot_id: b1\n    quantity: \"1\"\n")
	var out bytes.Buffer

	err := run(context.Background(), options{tax: true, year: 2023, method: "specid", selections: sel}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "exports", "form_8949_2023.csv")); err != nil {
		t.Errorf("missing form 8949: %v", err)
	}
	if !strings.Contains(out.String(), "SpecID") {
		t.Errorf("output missing method:\n%s", out.String())
	}
}

func TestRun_InvalidInput(t *testing.T) {
	isolate(t)
	if err := run(context.Background(), options{date: "12/01/2024"}, &bytes.Buffer{}); err == nil {
		t.Error("expected error for malformed -date")
	}
	if err := run(context.Background(), options{method: "hifo"}, &bytes.Buffer{}); !errors.Is(err, domain.ErrInvalidMethod) {
		t.Errorf("expected ErrInvalidMethod, got %v", err)
	}
}

func TestRenderDaily(t *testing.T) {
	s := report.DaySummary{
		TradeCount:    2,
		WinCount:      1,
		LossCount:     1,
		RealizedPnL:   decimal.RequireFromString("-150.5"),
		CumulativePnL: decimal.RequireFromString("20"),
		Proceeds:      decimal.RequireFromString("1000"),
		CostBasis:     decimal.RequireFromString("1150.5"),
	}
	alerts := report.Alerts(s, report.DefaultAlertPolicy())
	doc := export.NewDailyReport(s, alerts, domain.MethodFIFO, s.Date)

	got := renderDaily(doc)
	for _, want := range []string{"FIFO", "-150.50", "20.00", "2 (1 won, 1 lost, 0 flat)", "large loss"} {
		if !strings.Contains(got, want) {
			t.Errorf("rendered daily report missing %q:\n%s", want, got)
		}
	}
}

func TestRenderAccounts(t *testing.T) {
	got := renderAccounts([]exchange.Account{{Currency: "BTC", Available: decimal.RequireFromString("0.5")}})
	if !strings.Contains(got, "BTC") || !strings.Contains(got, "0.5") {
		t.Errorf("rendered accounts:\n%s", got)
	}
	if got := renderAccounts(nil); !strings.Contains(got, "no accounts") {
		t.Errorf("rendered empty accounts:\n%s", got)
	}
}
