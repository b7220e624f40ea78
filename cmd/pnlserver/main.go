package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/pnlledger/internal/config"
	"github.com/efreitasn/pnlledger/internal/exchange"
	"github.com/efreitasn/pnlledger/internal/handler"
	"github.com/efreitasn/pnlledger/internal/logging"
	"github.com/efreitasn/pnlledger/internal/report"
	"github.com/efreitasn/pnlledger/internal/service"
	"github.com/efreitasn/pnlledger/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	envFile := flag.String("env-file", "", "Credentials file (default $ENV_FILE or ~/.trading_bot_keys.env)")
	flag.Parse()

	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	if _, err := config.LoadEnvFile(*envFile); err != nil {
		slog.Error("failed to load env file", slog.String("error", err.Error()))
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	}, os.Stdout)
	if err != nil {
		slog.Error("failed to set up logging", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	repo, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer repo.Close()

	var source service.FillSource
	if cfg.Exchange.Configured() {
		source = exchange.NewClient(cfg.Exchange.BaseURL, exchange.Credentials{
			APIKey:     cfg.Exchange.APIKey,
			APISecret:  cfg.Exchange.APISecret,
			Passphrase: cfg.Exchange.Passphrase,
		}, cfg.QuoteCurrency, cfg.Exchange.Timeout, logger)
	} else {
		logger.Warn("exchange credentials not set, /sync disabled")
	}

	svc := service.NewLedgerService(repo, source, service.Options{
		DefaultMethod: cfg.CostBasisMethod,
		Parallel:      cfg.ParallelReplay,
		LongTermDays:  cfg.LongTermDays,
		AlertPolicy: report.AlertPolicy{
			LossThreshold: cfg.LossAlertThreshold,
			MinTrades:     report.DefaultAlertPolicy().MinTrades,
		},
	}, logger)

	router := handler.NewRouter(svc, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("cost_basis_method", string(cfg.CostBasisMethod)),
			slog.Bool("persistent", cfg.DBPath != ""),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}
