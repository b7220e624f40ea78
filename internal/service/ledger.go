package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/pnlledger/internal/domain"
	"github.com/efreitasn/pnlledger/internal/engine"
	"github.com/efreitasn/pnlledger/internal/report"
	"github.com/efreitasn/pnlledger/internal/store"
	"github.com/efreitasn/pnlledger/internal/tax"
)

// FillSource supplies fills from an exchange account.
type FillSource interface {
	ListFills(ctx context.Context) ([]domain.Fill, error)
}

// Options configures a LedgerService.
type Options struct {
	DefaultMethod domain.Method
	Parallel      bool
	LongTermDays  int
	AlertPolicy   report.AlertPolicy
}

// FillInput is a fill as submitted by a client. Amounts are decimal
// strings so no precision is lost before parsing.
type FillInput struct {
	ID         string
	OrderID    string
	Asset      string
	ProductID  string // alternative to Asset, e.g. "BTC-USD"
	Side       string
	Quantity   string
	Price      string
	Fee        string
	ExecutedAt time.Time
}

// SelectionInput designates part of a lot for a specific-identification
// sell.
type SelectionInput struct {
	LotID    string
	Quantity string
}

// ImportResult reports how many submitted fills were new.
type ImportResult struct {
	Received int
	Inserted int
}

// ReplayResult is the outcome of replaying the stored fill history.
type ReplayResult struct {
	Method  domain.Method
	Ledger  *engine.Ledger
	Records []domain.ClosedLotRecord
}

// DailyReport is one day's P&L with the alerts it raised.
type DailyReport struct {
	Method  domain.Method
	Summary report.DaySummary
	Alerts  []report.Alert
}

// LedgerService imports fills and derives lots, closed-lot records and
// reports from them. Every derived view is recomputed from the stored
// fills, or read from the snapshot the last replay persisted when no fill
// or selection has changed since.
type LedgerService struct {
	repo       store.Repository
	source     FillSource
	matcher    *engine.Matcher
	classifier *tax.Classifier
	opts       Options
	logger     *slog.Logger

	// mu serializes replays so concurrent requests persist whole results.
	// It also guards current.
	mu sync.Mutex
	// current holds the methods whose persisted records and daily series
	// reflect the stored fills and selections.
	current map[domain.Method]bool
}

// NewLedgerService creates a LedgerService. source may be nil when no
// exchange is configured.
func NewLedgerService(repo store.Repository, source FillSource, opts Options, logger *slog.Logger) *LedgerService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.DefaultMethod == "" {
		opts.DefaultMethod = domain.MethodFIFO
	}
	if opts.AlertPolicy.LossThreshold.IsZero() && opts.AlertPolicy.MinTrades == 0 {
		opts.AlertPolicy = report.DefaultAlertPolicy()
	}
	return &LedgerService{
		repo:       repo,
		source:     source,
		matcher:    engine.NewMatcher(logger),
		classifier: tax.NewClassifier(opts.LongTermDays, logger),
		opts:       opts,
		logger:     logger,
		current:    make(map[domain.Method]bool),
	}
}

// ResolveMethod parses a method name, falling back to the default for an
// empty string.
func (s *LedgerService) ResolveMethod(name string) (domain.Method, error) {
	if strings.TrimSpace(name) == "" {
		return s.opts.DefaultMethod, nil
	}
	return domain.ParseMethod(name)
}

// ImportFills validates and stores fills. Fills already stored are
// skipped.
func (s *LedgerService) ImportFills(ctx context.Context, inputs []FillInput) (ImportResult, error) {
	if len(inputs) == 0 {
		return ImportResult{}, &domain.ValidationError{Message: "fills must not be empty"}
	}
	fills := make([]domain.Fill, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for i, in := range inputs {
		f, err := in.toFill()
		if err != nil {
			return ImportResult{}, &domain.ValidationError{Message: fmt.Sprintf("fills[%d]: %v", i, err)}
		}
		if seen[f.ID] {
			return ImportResult{}, &domain.ValidationError{Message: fmt.Sprintf("fills[%d]: duplicate id %s", i, f.ID)}
		}
		seen[f.ID] = true
		fills = append(fills, f)
	}

	inserted, err := s.repo.SaveFills(ctx, fills)
	if err != nil {
		return ImportResult{}, err
	}
	if inserted > 0 {
		s.invalidate()
	}
	s.logger.Info("fills imported",
		slog.Int("received", len(fills)),
		slog.Int("inserted", inserted),
	)
	return ImportResult{Received: len(fills), Inserted: inserted}, nil
}

func (in FillInput) toFill() (domain.Fill, error) {
	asset := strings.ToUpper(strings.TrimSpace(in.Asset))
	if asset == "" && in.ProductID != "" {
		base, _, err := domain.SplitProduct(in.ProductID)
		if err != nil {
			return domain.Fill{}, err
		}
		asset = base
	}
	side, err := domain.ParseSide(in.Side)
	if err != nil {
		return domain.Fill{}, err
	}
	qty, err := domain.ParseAmount(in.Quantity)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("quantity: %w", err)
	}
	price, err := domain.ParseAmount(in.Price)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("price: %w", err)
	}
	fee := decimal.Zero
	if strings.TrimSpace(in.Fee) != "" {
		if fee, err = domain.ParseAmount(in.Fee); err != nil {
			return domain.Fill{}, fmt.Errorf("fee: %w", err)
		}
	}
	f := domain.Fill{
		ID:         strings.TrimSpace(in.ID),
		OrderID:    in.OrderID,
		Asset:      asset,
		Side:       side,
		Quantity:   qty,
		Price:      price,
		Fee:        fee,
		ExecutedAt: in.ExecutedAt.UTC(),
	}
	if err := f.Validate(); err != nil {
		return domain.Fill{}, err
	}
	return f, nil
}

// Fills returns every stored fill by execution time.
func (s *LedgerService) Fills(ctx context.Context) ([]domain.Fill, error) {
	return s.repo.ListFills(ctx)
}

// Sync pulls the fill history from the exchange and stores new fills.
func (s *LedgerService) Sync(ctx context.Context) (ImportResult, error) {
	if s.source == nil {
		return ImportResult{}, domain.ErrExchangeNotConfigured
	}
	fills, err := s.source.ListFills(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("sync fills: %w", err)
	}
	inserted, err := s.repo.SaveFills(ctx, fills)
	if err != nil {
		return ImportResult{}, err
	}
	if inserted > 0 {
		s.invalidate()
	}
	s.logger.Info("fills synced",
		slog.Int("fetched", len(fills)),
		slog.Int("inserted", inserted),
	)
	return ImportResult{Received: len(fills), Inserted: inserted}, nil
}

// SaveSelections stores the lots a sell closes under specific
// identification. An empty list removes the sell's selections.
func (s *LedgerService) SaveSelections(ctx context.Context, sellFillID string, inputs []SelectionInput) error {
	sellFillID = strings.TrimSpace(sellFillID)
	if sellFillID == "" {
		return &domain.ValidationError{Message: "sell_fill_id is required"}
	}
	selections := make([]domain.LotSelection, 0, len(inputs))
	for i, in := range inputs {
		lotID := strings.TrimSpace(in.LotID)
		if lotID == "" {
			return &domain.ValidationError{Message: fmt.Sprintf("selections[%d]: lot_id is required", i)}
		}
		qty, err := domain.ParseAmount(in.Quantity)
		if err != nil || !qty.IsPositive() {
			return &domain.ValidationError{Message: fmt.Sprintf("selections[%d]: quantity must be a decimal > 0", i)}
		}
		selections = append(selections, domain.LotSelection{LotID: lotID, Quantity: qty})
	}
	if err := s.repo.SaveSelections(ctx, sellFillID, selections); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// invalidate marks every persisted snapshot as stale.
func (s *LedgerService) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.current)
}

// Replay rebuilds lots and classified closed-lot records for method from
// every stored fill, and persists the records and the daily series.
func (s *LedgerService) Replay(ctx context.Context, method domain.Method) (*ReplayResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replay(ctx, method)
}

func (s *LedgerService) replay(ctx context.Context, method domain.Method) (*ReplayResult, error) {
	fills, err := s.repo.ListFills(ctx)
	if err != nil {
		return nil, err
	}
	opts := engine.Options{Method: method}
	if method == domain.MethodSpecificID {
		if opts.Selections, err = s.repo.ListSelections(ctx); err != nil {
			return nil, err
		}
	}

	started := time.Now()
	process := s.matcher.Process
	if s.opts.Parallel {
		process = s.matcher.ProcessParallel
	}
	ledger, records, err := process(engine.NewLedger(), fills, opts)
	if err != nil {
		return nil, err
	}
	records, err = s.classifier.ClassifyAll(records)
	if err != nil {
		return nil, err
	}

	if err := s.repo.ReplaceClosedLots(ctx, method, records); err != nil {
		return nil, err
	}
	if err := s.repo.SaveDailySummaries(ctx, method, report.DailySeries(records)); err != nil {
		return nil, err
	}
	s.current[method] = true

	s.logger.Info("replay complete",
		slog.String("method", string(method)),
		slog.Int("fills", len(fills)),
		slog.Int("records", len(records)),
		slog.Int("assets_open", len(ledger.Assets())),
		slog.Bool("parallel", s.opts.Parallel),
		slog.Duration("elapsed", time.Since(started)),
	)
	return &ReplayResult{Method: method, Ledger: ledger, Records: records}, nil
}

// OpenPositions returns per-asset position summaries and the open lots of
// each asset in the order method would consume them.
func (s *LedgerService) OpenPositions(ctx context.Context, method domain.Method) ([]domain.OpenPosition, map[string][]domain.Lot, error) {
	res, err := s.Replay(ctx, method)
	if err != nil {
		return nil, nil, err
	}
	lots := make(map[string][]domain.Lot)
	for _, asset := range res.Ledger.Assets() {
		lots[asset] = res.Ledger.OpenLots(asset, method)
	}
	return res.Ledger.Positions(), lots, nil
}

// ClosedLots returns the classified records for method. A non-zero year
// keeps only disposals in that UTC year.
func (s *LedgerService) ClosedLots(ctx context.Context, method domain.Method, year int) ([]domain.ClosedLotRecord, error) {
	records, err := s.closedRecords(ctx, method)
	if err != nil {
		return nil, err
	}
	if year == 0 {
		return records, nil
	}
	out := make([]domain.ClosedLotRecord, 0, len(records))
	for _, r := range records {
		if r.DisposedAt.UTC().Year() == year {
			out = append(out, r)
		}
	}
	return out, nil
}

// closedRecords reads the persisted records of method, replaying first
// when they are stale.
func (s *LedgerService) closedRecords(ctx context.Context, method domain.Method) ([]domain.ClosedLotRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current[method] {
		return s.repo.ListClosedLots(ctx, method)
	}
	res, err := s.replay(ctx, method)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// Daily returns the P&L summary and alerts for one date.
func (s *LedgerService) Daily(ctx context.Context, date time.Time, method domain.Method) (DailyReport, error) {
	res, err := s.Replay(ctx, method)
	if err != nil {
		return DailyReport{}, err
	}
	summary := report.DailySummary(res.Records, date)
	for _, day := range report.DailySeries(res.Records) {
		if day.Date.Equal(summary.Date) {
			summary.CumulativePnL = day.CumulativePnL
			break
		}
	}
	return DailyReport{
		Method:  method,
		Summary: summary,
		Alerts:  report.Alerts(summary, s.opts.AlertPolicy),
	}, nil
}

// DailySeries returns the persisted daily P&L series of method, replaying
// first when it is stale.
func (s *LedgerService) DailySeries(ctx context.Context, method domain.Method) ([]report.DaySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current[method] {
		if _, err := s.replay(ctx, method); err != nil {
			return nil, err
		}
	}
	return s.repo.ListDailySummaries(ctx, method)
}

// TaxSummary returns the annual capital-gains summary for year.
func (s *LedgerService) TaxSummary(ctx context.Context, year int, method domain.Method) (report.AnnualSummary, error) {
	if year < 1970 || year > 9999 {
		return report.AnnualSummary{}, &domain.ValidationError{Message: fmt.Sprintf("year must be between 1970 and 9999, got %d", year)}
	}
	records, err := s.closedRecords(ctx, method)
	if err != nil {
		return report.AnnualSummary{}, err
	}
	return report.AnnualTaxSummary(records, year)
}
