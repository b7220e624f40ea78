package engine

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/pnlledger/internal/domain"
)

// lotLess orders lots oldest first: acquisition time ascending, then
// insertion sequence. Min() is the FIFO candidate and Max() the LIFO one.
func lotLess(a, b domain.Lot) bool {
	if !a.AcquiredAt.Equal(b.AcquiredAt) {
		return a.AcquiredAt.Before(b.AcquiredAt)
	}
	return a.Seq < b.Seq
}

// lotQueue holds the open lots of a single asset in a B-tree with a
// secondary index for lookup by lot ID.
type lotQueue struct {
	lots  *btree.BTreeG[domain.Lot]
	index map[string]domain.Lot // lot_id → current lot
	open  decimal.Decimal       // sum of remaining quantity
}

func newLotQueue() *lotQueue {
	const degree = 16
	return &lotQueue{
		lots:  btree.NewG[domain.Lot](degree, lotLess),
		index: make(map[string]domain.Lot),
		open:  decimal.Zero,
	}
}

func (q *lotQueue) clone() *lotQueue {
	return &lotQueue{
		lots:  q.lots.Clone(),
		index: maps.Clone(q.index),
		open:  q.open,
	}
}

// Ledger is the lot-tracking state of one replay run: asset → open lots.
// It is not safe for concurrent use; independent runs use independent
// ledgers (see Clone).
type Ledger struct {
	queues   map[string]*lotQueue
	seq      uint64
	lastFill time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{queues: make(map[string]*lotQueue)}
}

// Clone returns an independent copy. B-trees are cloned lazily
// (copy-on-write), so cloning a large ledger is cheap.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		queues:   make(map[string]*lotQueue, len(l.queues)),
		seq:      l.seq,
		lastFill: l.lastFill,
	}
	for asset, q := range l.queues {
		c.queues[asset] = q.clone()
	}
	return c
}

// LastProcessed returns the execution time of the latest fill applied to
// the ledger, or the zero time for a fresh ledger.
func (l *Ledger) LastProcessed() time.Time {
	return l.lastFill
}

// OpenLot appends a new lot created by a buy fill to the asset's queue.
func (l *Ledger) OpenLot(f domain.Fill) (domain.Lot, error) {
	if err := f.Validate(); err != nil {
		return domain.Lot{}, err
	}
	if f.Side != domain.SideBuy {
		return domain.Lot{}, fmt.Errorf("%w: fill %s: only buys open lots", domain.ErrInvalidFill, f.ID)
	}
	q := l.queues[f.Asset]
	if q == nil {
		q = newLotQueue()
		l.queues[f.Asset] = q
	}
	if _, exists := q.index[f.ID]; exists {
		return domain.Lot{}, fmt.Errorf("%w: lot %s already open", domain.ErrInvalidFill, f.ID)
	}

	cost := f.Gross().Add(f.Fee)
	l.seq++
	lot := domain.Lot{
		ID:                f.ID,
		Asset:             f.Asset,
		Seq:               l.seq,
		OriginalQuantity:  f.Quantity,
		RemainingQuantity: f.Quantity,
		UnitCost:          cost.DivRound(f.Quantity, domain.Scale),
		RemainingCost:     cost,
		AcquiredAt:        f.ExecutedAt.UTC(),
	}
	q.lots.ReplaceOrInsert(lot)
	q.index[lot.ID] = lot
	q.open = q.open.Add(lot.RemainingQuantity)
	return lot, nil
}

// PeekNextLot returns the lot the method would consume next without
// changing the ledger.
func (l *Ledger) PeekNextLot(asset string, method domain.Method) (domain.Lot, error) {
	q := l.queues[asset]
	if q == nil || q.lots.Len() == 0 {
		return domain.Lot{}, fmt.Errorf("%w: %s", domain.ErrNoOpenLots, asset)
	}
	var (
		lot domain.Lot
		ok  bool
	)
	switch method {
	case domain.MethodFIFO:
		lot, ok = q.lots.Min()
	case domain.MethodLIFO:
		lot, ok = q.lots.Max()
	case domain.MethodSpecificID:
		return domain.Lot{}, fmt.Errorf("%w: %s has no implicit lot order", domain.ErrSelectionRequired, method)
	default:
		return domain.Lot{}, fmt.Errorf("%w: %q", domain.ErrInvalidMethod, method)
	}
	if !ok {
		return domain.Lot{}, fmt.Errorf("%w: %s", domain.ErrNoOpenLots, asset)
	}
	return lot, nil
}

// SelectLot returns an open lot by ID for specific identification.
func (l *Ledger) SelectLot(asset, lotID string) (domain.Lot, error) {
	q := l.queues[asset]
	if q == nil {
		return domain.Lot{}, fmt.Errorf("%w: %s/%s", domain.ErrLotNotFound, asset, lotID)
	}
	lot, ok := q.index[lotID]
	if !ok {
		return domain.Lot{}, fmt.Errorf("%w: %s/%s", domain.ErrLotNotFound, asset, lotID)
	}
	return lot, nil
}

// Consumption is the outcome of consuming part of a lot.
type Consumption struct {
	Lot       domain.Lot      // lot state after consumption
	Quantity  decimal.Decimal // quantity consumed
	CostBasis decimal.Decimal // cost basis released by the consumption
}

// Consume reduces the lot's remaining quantity by qty and returns the cost
// basis released. The ledger's own copy of the lot is authoritative; the
// argument only identifies it. A lot reaching zero leaves the queue.
func (l *Ledger) Consume(lot domain.Lot, qty decimal.Decimal) (Consumption, error) {
	cur, err := l.SelectLot(lot.Asset, lot.ID)
	if err != nil {
		return Consumption{}, err
	}
	if !qty.IsPositive() || qty.GreaterThan(cur.RemainingQuantity) {
		return Consumption{}, fmt.Errorf("%w: lot %s has %s remaining, asked for %s",
			domain.ErrOverConsumption, cur.ID, cur.RemainingQuantity, qty)
	}

	q := l.queues[lot.Asset]
	cost := domain.Prorate(cur.RemainingCost, qty, cur.RemainingQuantity)

	next := cur
	next.RemainingQuantity = cur.RemainingQuantity.Sub(qty)
	next.RemainingCost = cur.RemainingCost.Sub(cost)
	q.open = q.open.Sub(qty)

	if next.IsClosed() {
		next.RemainingQuantity = decimal.Zero
		next.RemainingCost = decimal.Zero
		q.lots.Delete(cur)
		delete(q.index, cur.ID)
	} else {
		// Ordering fields are unchanged, so this replaces in place.
		q.lots.ReplaceOrInsert(next)
		q.index[next.ID] = next
	}
	if q.lots.Len() == 0 {
		delete(l.queues, lot.Asset)
	}

	return Consumption{Lot: next, Quantity: qty, CostBasis: cost}, nil
}

// OpenQuantity returns the total remaining quantity of the asset.
func (l *Ledger) OpenQuantity(asset string) decimal.Decimal {
	q := l.queues[asset]
	if q == nil {
		return decimal.Zero
	}
	return q.open
}

// OpenLots returns the asset's open lots in the order the method would
// consume them. Specific identification lists lots oldest first.
func (l *Ledger) OpenLots(asset string, method domain.Method) []domain.Lot {
	q := l.queues[asset]
	if q == nil {
		return []domain.Lot{}
	}
	lots := make([]domain.Lot, 0, q.lots.Len())
	collect := func(lot domain.Lot) bool {
		lots = append(lots, lot)
		return true
	}
	if method == domain.MethodLIFO {
		q.lots.Descend(collect)
	} else {
		q.lots.Ascend(collect)
	}
	return lots
}

// Assets returns the assets with open lots, sorted.
func (l *Ledger) Assets() []string {
	assets := make([]string, 0, len(l.queues))
	for asset := range l.queues {
		assets = append(assets, asset)
	}
	slices.Sort(assets)
	return assets
}

// Positions summarizes the open lots of every asset, sorted by asset.
func (l *Ledger) Positions() []domain.OpenPosition {
	positions := make([]domain.OpenPosition, 0, len(l.queues))
	for _, asset := range l.Assets() {
		q := l.queues[asset]
		p := domain.OpenPosition{
			Asset:     asset,
			Quantity:  q.open,
			CostBasis: decimal.Zero,
			LotCount:  q.lots.Len(),
		}
		if oldest, ok := q.lots.Min(); ok {
			p.OldestAcquiredAt = oldest.AcquiredAt
		}
		q.lots.Ascend(func(lot domain.Lot) bool {
			p.CostBasis = p.CostBasis.Add(lot.RemainingCost)
			return true
		})
		if q.open.IsPositive() {
			p.AverageCost = p.CostBasis.DivRound(q.open, domain.Scale)
		}
		positions = append(positions, p)
	}
	return positions
}

// split moves the queue of one asset into a new ledger sharing nothing
// with l. Used to replay assets independently.
func (l *Ledger) split(asset string) *Ledger {
	part := &Ledger{
		queues:   make(map[string]*lotQueue, 1),
		seq:      l.seq,
		lastFill: l.lastFill,
	}
	if q := l.queues[asset]; q != nil {
		part.queues[asset] = q.clone()
	}
	return part
}
