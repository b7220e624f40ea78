package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/pnlledger/internal/domain"
)

// DefaultEnvFile is the credentials file read by LoadEnvFile when
// ENV_FILE is unset, relative to the user's home directory.
const DefaultEnvFile = ".trading_bot_keys.env"

// Config holds all runtime configuration for the P&L ledger.
type Config struct {
	Port          int
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int

	// DBPath is the SQLite database file. Empty keeps everything in memory.
	DBPath             string
	CostBasisMethod    domain.Method
	QuoteCurrency      string
	LongTermDays       int
	LossAlertThreshold decimal.Decimal
	ExportDir          string
	ParallelReplay     bool

	Exchange ExchangeConfig

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// ExchangeConfig holds the Coinbase API credentials and client settings.
type ExchangeConfig struct {
	APIKey     string
	APISecret  string
	Passphrase string
	BaseURL    string
	Timeout    time.Duration
}

// Configured reports whether credentials are present.
func (e ExchangeConfig) Configured() bool {
	return e.APIKey != "" && e.APISecret != ""
}

// LoadEnvFile loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. An empty path resolves to
// ENV_FILE or ~/.trading_bot_keys.env. A missing file is not an error.
// It returns the path it tried.
func LoadEnvFile(path string) (string, error) {
	if path == "" {
		path = os.Getenv("ENV_FILE")
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", nil
		}
		path = filepath.Join(home, DefaultEnvFile)
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		return path, fmt.Errorf("load env file %s: %w", path, err)
	}
	return path, nil
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d out of range", port)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	logMaxSize, err := getInt("LOG_MAX_SIZE_MB", 100)
	if err != nil || logMaxSize <= 0 {
		return nil, fmt.Errorf("invalid LOG_MAX_SIZE_MB: %q", os.Getenv("LOG_MAX_SIZE_MB"))
	}

	logMaxBackups, err := getInt("LOG_MAX_BACKUPS", 5)
	if err != nil || logMaxBackups < 0 {
		return nil, fmt.Errorf("invalid LOG_MAX_BACKUPS: %q", os.Getenv("LOG_MAX_BACKUPS"))
	}

	method, err := domain.ParseMethod(getStr("COST_BASIS_METHOD", string(domain.MethodFIFO)))
	if err != nil {
		return nil, fmt.Errorf("invalid COST_BASIS_METHOD: %w", err)
	}

	quote := strings.ToUpper(getStr("QUOTE_CURRENCY", "USD"))

	longTermDays, err := getInt("LONG_TERM_DAYS", 365)
	if err != nil || longTermDays <= 0 {
		return nil, fmt.Errorf("invalid LONG_TERM_DAYS: %q", os.Getenv("LONG_TERM_DAYS"))
	}

	lossThreshold, err := getDecimal("LOSS_ALERT_THRESHOLD", decimal.NewFromInt(-100))
	if err != nil {
		return nil, fmt.Errorf("invalid LOSS_ALERT_THRESHOLD: %w", err)
	}

	parallel, err := getBool("PARALLEL_REPLAY", false)
	if err != nil {
		return nil, fmt.Errorf("invalid PARALLEL_REPLAY: %w", err)
	}

	exchangeTimeout, err := getDuration("EXCHANGE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid EXCHANGE_TIMEOUT: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:               port,
		LogLevel:           logLevel,
		LogFile:            getStr("LOG_FILE", ""),
		LogMaxSizeMB:       logMaxSize,
		LogMaxBackups:      logMaxBackups,
		DBPath:             getStr("DB_PATH", ""),
		CostBasisMethod:    method,
		QuoteCurrency:      quote,
		LongTermDays:       longTermDays,
		LossAlertThreshold: lossThreshold,
		ExportDir:          getStr("EXPORT_DIR", "reports/exports"),
		ParallelReplay:     parallel,
		Exchange: ExchangeConfig{
			APIKey:     getStr("CB_API_KEY", ""),
			APISecret:  getStr("CB_API_SECRET", ""),
			Passphrase: getStr("CB_API_PASSPHRASE", ""),
			BaseURL:    strings.TrimRight(getStr("CB_BASE_URL", "https://api.coinbase.com"), "/"),
			Timeout:    exchangeTimeout,
		},
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		IdleTimeout:     idleTimeout,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseBool(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func getDecimal(key string, defaultVal decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return domain.ParseAmount(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
