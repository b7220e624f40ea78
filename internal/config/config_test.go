package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/efreitasn/pnlledger/internal/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.LogFile != "" {
		t.Errorf("LogFile = %q, want empty", cfg.LogFile)
	}
	if cfg.LogMaxSizeMB != 100 || cfg.LogMaxBackups != 5 {
		t.Errorf("log rotation = %d MB / %d backups, want 100 / 5", cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	}
	if cfg.DBPath != "" {
		t.Errorf("DBPath = %q, want empty", cfg.DBPath)
	}
	if cfg.CostBasisMethod != domain.MethodFIFO {
		t.Errorf("CostBasisMethod = %q, want fifo", cfg.CostBasisMethod)
	}
	if cfg.QuoteCurrency != "USD" {
		t.Errorf("QuoteCurrency = %q, want USD", cfg.QuoteCurrency)
	}
	if cfg.LongTermDays != 365 {
		t.Errorf("LongTermDays = %d, want 365", cfg.LongTermDays)
	}
	if cfg.LossAlertThreshold.String() != "-100" {
		t.Errorf("LossAlertThreshold = %s, want -100", cfg.LossAlertThreshold)
	}
	if cfg.ExportDir != "reports/exports" {
		t.Errorf("ExportDir = %q, want reports/exports", cfg.ExportDir)
	}
	if cfg.ParallelReplay {
		t.Error("ParallelReplay should default to false")
	}
	if cfg.Exchange.BaseURL != "https://api.coinbase.com" {
		t.Errorf("Exchange.BaseURL = %q", cfg.Exchange.BaseURL)
	}
	if cfg.Exchange.Timeout != 30*time.Second {
		t.Errorf("Exchange.Timeout = %v, want 30s", cfg.Exchange.Timeout)
	}
	if cfg.Exchange.Configured() {
		t.Error("exchange should not be configured without credentials")
	}
	if cfg.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.ReadTimeout)
	}
	if cfg.WriteTimeout != 10*time.Second {
		t.Errorf("WriteTimeout = %v, want 10s", cfg.WriteTimeout)
	}
	if cfg.IdleTimeout != 60*time.Second {
		t.Errorf("IdleTimeout = %v, want 60s", cfg.IdleTimeout)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FILE", "/var/log/pnl.log")
	t.Setenv("DB_PATH", "trades.db")
	t.Setenv("COST_BASIS_METHOD", "SpecID")
	t.Setenv("QUOTE_CURRENCY", "eur")
	t.Setenv("LONG_TERM_DAYS", "730")
	t.Setenv("LOSS_ALERT_THRESHOLD", "-250.5")
	t.Setenv("PARALLEL_REPLAY", "true")
	t.Setenv("CB_API_KEY", "key")
	t.Setenv("CB_API_SECRET", "secret")
	t.Setenv("CB_BASE_URL", "http://localhost:9999/")
	t.Setenv("EXCHANGE_TIMEOUT", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.LogFile != "/var/log/pnl.log" {
		t.Errorf("LogFile = %q", cfg.LogFile)
	}
	if cfg.DBPath != "trades.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.CostBasisMethod != domain.MethodSpecificID {
		t.Errorf("CostBasisMethod = %q, want specific_id", cfg.CostBasisMethod)
	}
	if cfg.QuoteCurrency != "EUR" {
		t.Errorf("QuoteCurrency = %q, want EUR", cfg.QuoteCurrency)
	}
	if cfg.LongTermDays != 730 {
		t.Errorf("LongTermDays = %d, want 730", cfg.LongTermDays)
	}
	if cfg.LossAlertThreshold.String() != "-250.5" {
		t.Errorf("LossAlertThreshold = %s, want -250.5", cfg.LossAlertThreshold)
	}
	if !cfg.ParallelReplay {
		t.Error("ParallelReplay = false, want true")
	}
	if !cfg.Exchange.Configured() {
		t.Error("exchange should be configured")
	}
	if cfg.Exchange.BaseURL != "http://localhost:9999" {
		t.Errorf("Exchange.BaseURL = %q, want trailing slash trimmed", cfg.Exchange.BaseURL)
	}
	if cfg.Exchange.Timeout != 3*time.Second {
		t.Errorf("Exchange.Timeout = %v, want 3s", cfg.Exchange.Timeout)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PORT", "not-a-number"},
		{"PORT", "70000"},
		{"LOG_LEVEL", "verbose"},
		{"LOG_MAX_SIZE_MB", "0"},
		{"LOG_MAX_BACKUPS", "-1"},
		{"COST_BASIS_METHOD", "hifo"},
		{"LONG_TERM_DAYS", "0"},
		{"LONG_TERM_DAYS", "a year"},
		{"LOSS_ALERT_THRESHOLD", "lots"},
		{"PARALLEL_REPLAY", "sometimes"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	for _, key := range durationEnvKeys {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, "not-a-duration")

			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for invalid %s", key)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CB_API_KEY", "from-environment")

	path := filepath.Join(t.TempDir(), "keys.env")
	content := "CB_API_KEY=from-file\nCB_API_SECRET=file-secret\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	got, err := LoadEnvFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}
	if v := os.Getenv("CB_API_KEY"); v != "from-environment" {
		t.Errorf("CB_API_KEY = %q, existing variables must win", v)
	}
	if v := os.Getenv("CB_API_SECRET"); v != "file-secret" {
		t.Errorf("CB_API_SECRET = %q, want file-secret", v)
	}
}

func TestLoadEnvFile_Missing(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "absent.env")

	if _, err := LoadEnvFile(path); err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
}

func TestLoadEnvFile_FromEnvVar(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "custom.env")
	if err := os.WriteFile(path, []byte("QUOTE_CURRENCY=GBP\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE", path)

	got, err := LoadEnvFile("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.QuoteCurrency != "GBP" {
		t.Errorf("QuoteCurrency = %q, want GBP", cfg.QuoteCurrency)
	}
}
