package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/efreitasn/pnlledger/internal/config"
	"github.com/efreitasn/pnlledger/internal/domain"
	"github.com/efreitasn/pnlledger/internal/exchange"
	"github.com/efreitasn/pnlledger/internal/export"
	"github.com/efreitasn/pnlledger/internal/logging"
	"github.com/efreitasn/pnlledger/internal/report"
	"github.com/efreitasn/pnlledger/internal/service"
	"github.com/efreitasn/pnlledger/internal/store"
)

type options struct {
	envFile    string
	check      bool
	sync       bool
	tax        bool
	date       string
	year       int
	method     string
	selections string
}

func main() {
	var opts options
	flag.StringVar(&opts.envFile, "env-file", "", "Credentials file (default $ENV_FILE or ~/.trading_bot_keys.env)")
	flag.BoolVar(&opts.check, "check", false, "Check the exchange connection and exit")
	flag.BoolVar(&opts.sync, "sync", false, "Pull fills from the exchange before reporting")
	flag.BoolVar(&opts.tax, "tax", false, "Generate the annual tax report instead of the daily report")
	flag.StringVar(&opts.date, "date", "", "Daily report date, YYYY-MM-DD (default today, UTC)")
	flag.IntVar(&opts.year, "year", 0, "Tax year (default current year)")
	flag.StringVar(&opts.method, "method", "", "Cost basis method: fifo, lifo or specific_id (default COST_BASIS_METHOD)")
	flag.StringVar(&opts.selections, "selections", "", "YAML file of specific-identification lot selections")
	flag.Parse()

	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	if _, err := config.LoadEnvFile(opts.envFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	}, os.Stderr)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	var client *exchange.Client
	if cfg.Exchange.Configured() {
		client = exchange.NewClient(cfg.Exchange.BaseURL, exchange.Credentials{
			APIKey:     cfg.Exchange.APIKey,
			APISecret:  cfg.Exchange.APISecret,
			Passphrase: cfg.Exchange.Passphrase,
		}, cfg.QuoteCurrency, cfg.Exchange.Timeout, logger)
	}

	if opts.check {
		if client == nil {
			return domain.ErrExchangeNotConfigured
		}
		accounts, err := client.ListAccounts(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, renderAccounts(accounts))
		return nil
	}

	repo, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	var source service.FillSource
	if client != nil {
		source = client
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

	if opts.sync {
		res, err := svc.Sync(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "synced %d fills, %d new\n", res.Received, res.Inserted)
	}

	if opts.selections != "" {
		bySell, err := loadSelections(opts.selections)
		if err != nil {
			return err
		}
		for _, sellID := range sortedKeys(bySell) {
			if err := svc.SaveSelections(ctx, sellID, bySell[sellID]); err != nil {
				return fmt.Errorf("selections for %s: %w", sellID, err)
			}
		}
		logger.Info("selections loaded", slog.Int("sells", len(bySell)))
	}

	method, err := svc.ResolveMethod(opts.method)
	if err != nil {
		return err
	}
	exporter := export.NewExporter(cfg.ExportDir, logger)
	now := time.Now()

	if opts.tax {
		return runTax(ctx, svc, exporter, method, opts.year, now, out)
	}
	return runDaily(ctx, svc, exporter, method, opts.date, now, out)
}

func runDaily(ctx context.Context, svc *service.LedgerService, exporter *export.Exporter, method domain.Method, date string, now time.Time, out io.Writer) error {
	day := now.UTC()
	if date != "" {
		var err error
		if day, err = time.Parse(time.DateOnly, date); err != nil {
			return errors.New("-date must be formatted as YYYY-MM-DD")
		}
	}
	rep, err := svc.Daily(ctx, day, method)
	if err != nil {
		return err
	}
	doc := export.NewDailyReport(rep.Summary, rep.Alerts, method, now)

	csvPath, err := exporter.DailyCSV(doc)
	if err != nil {
		return err
	}
	jsonPath, err := exporter.DailyJSON(doc)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, renderDaily(doc))
	fmt.Fprintf(out, "wrote %s\nwrote %s\n", csvPath, jsonPath)
	return nil
}

func runTax(ctx context.Context, svc *service.LedgerService, exporter *export.Exporter, method domain.Method, year int, now time.Time, out io.Writer) error {
	if year == 0 {
		year = now.UTC().Year()
	}
	summary, err := svc.TaxSummary(ctx, year, method)
	if err != nil {
		return err
	}
	doc := export.NewTaxReport(summary, method)

	jsonPath, err := exporter.TaxJSON(doc)
	if err != nil {
		return err
	}
	formPath, err := exporter.Form8949(year, summary.Records)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, renderTax(doc))
	fmt.Fprintf(out, "wrote %s\nwrote %s\n", jsonPath, formPath)
	return nil
}
