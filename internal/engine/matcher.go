package engine

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/efreitasn/pnlledger/internal/domain"
)

// recordNamespace seeds the name-based UUIDs of closed-lot records so that
// replaying the same fills always yields the same record IDs.
var recordNamespace = uuid.MustParse("6f1c8a52-3d0e-4c7b-9a8e-2b5d4f0c1e93")

// Options configures one replay run.
type Options struct {
	Method domain.Method
	// Selections maps a sell fill ID to the lots it closes. Required for
	// every sell under domain.MethodSpecificID and ignored otherwise.
	Selections map[string][]domain.LotSelection
}

// Matcher replays ordered fills against a Ledger and emits closed-lot
// records. It holds no state between calls.
type Matcher struct {
	logger *slog.Logger
}

// NewMatcher creates a Matcher. A nil logger discards debug output.
func NewMatcher(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Matcher{logger: logger}
}

// Process applies fills, which must be sorted by execution time ascending,
// to a copy of state and returns the resulting ledger with the records of
// every closing match in input order. On error the input state is left
// untouched and no records are returned. A nil state is a fresh ledger.
//
// Records are emitted unclassified; see package tax.
func (m *Matcher) Process(state *Ledger, fills []domain.Fill, opts Options) (*Ledger, []domain.ClosedLotRecord, error) {
	if err := validateMethod(opts.Method); err != nil {
		return nil, nil, err
	}
	if state == nil {
		state = NewLedger()
	}
	if err := checkFills(state.lastFill, fills); err != nil {
		return nil, nil, err
	}

	next := state.Clone()
	records := make([]domain.ClosedLotRecord, 0)

	for _, f := range fills {
		switch f.Side {
		case domain.SideBuy:
			lot, err := next.OpenLot(f)
			if err != nil {
				return nil, nil, err
			}
			m.logger.Debug("lot opened",
				slog.String("lot_id", lot.ID),
				slog.String("asset", lot.Asset),
				slog.String("quantity", lot.OriginalQuantity.String()),
				slog.String("unit_cost", lot.UnitCost.String()),
			)
		case domain.SideSell:
			recs, err := m.closeSell(next, f, opts)
			if err != nil {
				return nil, nil, err
			}
			records = append(records, recs...)
		}
		next.lastFill = f.ExecutedAt.UTC()
	}

	return next, records, nil
}

// ProcessParallel produces the same result as Process, replaying each
// asset on its own goroutine. On failure it returns the same error Process
// would. Assets share no lots, so the per-asset runs
// need no coordination beyond the final merge.
func (m *Matcher) ProcessParallel(state *Ledger, fills []domain.Fill, opts Options) (*Ledger, []domain.ClosedLotRecord, error) {
	if err := validateMethod(opts.Method); err != nil {
		return nil, nil, err
	}
	if state == nil {
		state = NewLedger()
	}
	if err := checkFills(state.lastFill, fills); err != nil {
		return nil, nil, err
	}

	byAsset := make(map[string][]domain.Fill)
	position := make(map[string]int, len(fills))
	for i, f := range fills {
		byAsset[f.Asset] = append(byAsset[f.Asset], f)
		position[f.ID] = i
	}
	assets := state.Assets()
	for asset := range byAsset {
		if !slices.Contains(assets, asset) {
			assets = append(assets, asset)
		}
	}
	slices.Sort(assets)

	type assetResult struct {
		ledger  *Ledger
		records []domain.ClosedLotRecord
	}
	results := make([]assetResult, len(assets))

	var g errgroup.Group
	for i, asset := range assets {
		g.Go(func() error {
			ledger, recs, err := m.Process(state.split(asset), byAsset[asset], opts)
			if err != nil {
				return err
			}
			results[i] = assetResult{ledger: ledger, records: recs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// The first goroutine to fail is not necessarily the earliest
		// failing fill. Replay serially so the error names the same sell.
		if _, _, serialErr := m.Process(state, fills, opts); serialErr != nil {
			return nil, nil, serialErr
		}
		return nil, nil, err
	}

	merged := &Ledger{
		queues:   make(map[string]*lotQueue, len(assets)),
		seq:      state.seq,
		lastFill: state.lastFill,
	}
	if n := len(fills); n > 0 {
		merged.lastFill = fills[n-1].ExecutedAt.UTC()
	}
	var records []domain.ClosedLotRecord
	for i, asset := range assets {
		res := results[i]
		if q := res.ledger.queues[asset]; q != nil {
			merged.queues[asset] = q
		}
		merged.seq = max(merged.seq, res.ledger.seq)
		records = append(records, res.records...)
	}
	// A sell closes lots of one asset only, so a stable sort on the sell's
	// input position restores the serial order.
	slices.SortStableFunc(records, func(a, b domain.ClosedLotRecord) int {
		return position[a.SellFillID] - position[b.SellFillID]
	})
	if records == nil {
		records = []domain.ClosedLotRecord{}
	}

	return merged, records, nil
}

// closeSell matches one sell fill against open lots of its asset.
func (m *Matcher) closeSell(l *Ledger, f domain.Fill, opts Options) ([]domain.ClosedLotRecord, error) {
	available := l.OpenQuantity(f.Asset)
	if f.Quantity.GreaterThan(available) {
		return nil, &domain.InsufficientInventoryError{
			FillID:    f.ID,
			Asset:     f.Asset,
			Requested: f.Quantity,
			Available: available,
		}
	}

	m.logger.Debug("closing sell",
		slog.String("fill_id", f.ID),
		slog.String("asset", f.Asset),
		slog.String("quantity", f.Quantity.String()),
		slog.String("price", f.Price.String()),
		slog.String("fee", f.Fee.String()),
		slog.String("method", string(opts.Method)),
	)

	a := &allocation{fill: f, method: opts.Method, unmatched: f.Quantity, feeLeft: f.Fee}

	if opts.Method == domain.MethodSpecificID {
		selections, ok := opts.Selections[f.ID]
		if !ok || len(selections) == 0 {
			return nil, fmt.Errorf("%w: sell %s", domain.ErrSelectionRequired, f.ID)
		}
		if err := validateSelections(l, f, selections); err != nil {
			return nil, err
		}
		for _, sel := range selections {
			lot, err := l.SelectLot(f.Asset, sel.LotID)
			if err != nil {
				return nil, err
			}
			if err := m.match(l, a, lot, sel.Quantity); err != nil {
				return nil, err
			}
		}
		return a.records, nil
	}

	for a.unmatched.IsPositive() {
		lot, err := l.PeekNextLot(f.Asset, opts.Method)
		if err != nil {
			return nil, err
		}
		if err := m.match(l, a, lot, domain.MinAmount(a.unmatched, lot.RemainingQuantity)); err != nil {
			return nil, err
		}
	}
	return a.records, nil
}

// allocation tracks how much of a sell fill and its fee are still to be
// matched. The fee is split in proportion to quantity and the last slice
// takes the residual, so the slices always sum to the fee.
type allocation struct {
	fill      domain.Fill
	method    domain.Method
	unmatched decimal.Decimal
	feeLeft   decimal.Decimal
	records   []domain.ClosedLotRecord
}

func (m *Matcher) match(l *Ledger, a *allocation, lot domain.Lot, qty decimal.Decimal) error {
	c, err := l.Consume(lot, qty)
	if err != nil {
		return err
	}

	fee := domain.Prorate(a.feeLeft, qty, a.unmatched)
	a.feeLeft = a.feeLeft.Sub(fee)
	a.unmatched = a.unmatched.Sub(qty)

	proceeds := qty.Mul(a.fill.Price).Sub(fee)
	idx := len(a.records)
	rec := domain.ClosedLotRecord{
		ID:         recordID(a.fill.ID, lot.ID, idx, a.method),
		SellFillID: a.fill.ID,
		LotID:      lot.ID,
		Asset:      a.fill.Asset,
		Method:     a.method,
		Quantity:   qty,
		CostBasis:  c.CostBasis,
		Proceeds:   proceeds,
		GainLoss:   proceeds.Sub(c.CostBasis),
		AcquiredAt: lot.AcquiredAt,
		DisposedAt: a.fill.ExecutedAt.UTC(),
	}
	a.records = append(a.records, rec)

	m.logger.Debug("lot consumed",
		slog.String("fill_id", a.fill.ID),
		slog.String("lot_id", lot.ID),
		slog.String("quantity", qty.String()),
		slog.String("cost_basis", rec.CostBasis.String()),
		slog.String("proceeds", rec.Proceeds.String()),
		slog.String("gain_loss", rec.GainLoss.String()),
	)
	return nil
}

// validateSelections checks a specific-identification request before any
// lot is touched.
func validateSelections(l *Ledger, f domain.Fill, selections []domain.LotSelection) error {
	total := decimal.Zero
	perLot := make(map[string]decimal.Decimal, len(selections))
	for _, sel := range selections {
		if !sel.Quantity.IsPositive() {
			return fmt.Errorf("%w: sell %s: lot %s quantity must be > 0, got %s",
				domain.ErrInvalidSelection, f.ID, sel.LotID, sel.Quantity)
		}
		total = total.Add(sel.Quantity)
		perLot[sel.LotID] = perLot[sel.LotID].Add(sel.Quantity)
	}
	if !total.Equal(f.Quantity) {
		return fmt.Errorf("%w: sell %s: selections sum to %s, sell quantity is %s",
			domain.ErrInvalidSelection, f.ID, total, f.Quantity)
	}
	for lotID, qty := range perLot {
		lot, err := l.SelectLot(f.Asset, lotID)
		if err != nil {
			return err
		}
		if qty.GreaterThan(lot.RemainingQuantity) {
			return fmt.Errorf("%w: sell %s: lot %s has %s remaining, selected %s",
				domain.ErrOverConsumption, f.ID, lotID, lot.RemainingQuantity, qty)
		}
	}
	return nil
}

// checkFills validates every fill and the chronological order of the
// sequence, starting after the ledger's last processed fill.
func checkFills(after time.Time, fills []domain.Fill) error {
	seen := make(map[string]struct{}, len(fills))
	prev := after
	for i, f := range fills {
		if err := f.Validate(); err != nil {
			return err
		}
		if _, dup := seen[f.ID]; dup {
			return fmt.Errorf("%w: duplicate fill id %s", domain.ErrInvalidFill, f.ID)
		}
		seen[f.ID] = struct{}{}
		if f.ExecutedAt.Before(prev) {
			return fmt.Errorf("%w: fill %d (%s) at %s precedes %s",
				domain.ErrUnorderedInput, i, f.ID, f.ExecutedAt.UTC().Format(time.RFC3339), prev.UTC().Format(time.RFC3339))
		}
		prev = f.ExecutedAt
	}
	return nil
}

func validateMethod(m domain.Method) error {
	switch m {
	case domain.MethodFIFO, domain.MethodLIFO, domain.MethodSpecificID:
		return nil
	}
	return fmt.Errorf("%w: %q", domain.ErrInvalidMethod, m)
}

func recordID(sellID, lotID string, idx int, method domain.Method) string {
	name := fmt.Sprintf("%s|%s|%d|%s", sellID, lotID, idx, method)
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}
