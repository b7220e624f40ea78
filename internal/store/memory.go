package store

import (
	"context"
	"slices"
	"sync"

	"github.com/efreitasn/pnlledger/internal/domain"
	"github.com/efreitasn/pnlledger/internal/report"
)

// MemoryStore is a thread-safe in-memory Repository. Fills are
// append-only; everything else is replaced wholesale.
type MemoryStore struct {
	mu         sync.RWMutex
	fills      []domain.Fill
	fillIDs    map[string]struct{}
	selections map[string][]domain.LotSelection // sell fill id → selections
	closed     map[domain.Method][]domain.ClosedLotRecord
	daily      map[domain.Method][]report.DaySummary
}

var _ Repository = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fillIDs:    make(map[string]struct{}),
		selections: make(map[string][]domain.LotSelection),
		closed:     make(map[domain.Method][]domain.ClosedLotRecord),
		daily:      make(map[domain.Method][]report.DaySummary),
	}
}

func (s *MemoryStore) SaveFills(_ context.Context, fills []domain.Fill) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, f := range fills {
		if _, ok := s.fillIDs[f.ID]; ok {
			continue
		}
		s.fillIDs[f.ID] = struct{}{}
		s.fills = append(s.fills, f)
		added++
	}
	return added, nil
}

func (s *MemoryStore) ListFills(_ context.Context) ([]domain.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Clone(s.fills)
	if result == nil {
		return []domain.Fill{}, nil
	}
	slices.SortStableFunc(result, func(a, b domain.Fill) int {
		return a.ExecutedAt.Compare(b.ExecutedAt)
	})
	return result, nil
}

func (s *MemoryStore) SaveSelections(_ context.Context, sellFillID string, selections []domain.LotSelection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(selections) == 0 {
		delete(s.selections, sellFillID)
		return nil
	}
	s.selections[sellFillID] = slices.Clone(selections)
	return nil
}

func (s *MemoryStore) ListSelections(_ context.Context) (map[string][]domain.LotSelection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string][]domain.LotSelection, len(s.selections))
	for id, sel := range s.selections {
		result[id] = slices.Clone(sel)
	}
	return result, nil
}

func (s *MemoryStore) ReplaceClosedLots(_ context.Context, method domain.Method, records []domain.ClosedLotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed[method] = slices.Clone(records)
	return nil
}

func (s *MemoryStore) ListClosedLots(_ context.Context, method domain.Method) ([]domain.ClosedLotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.closed[method]
	if records == nil {
		return []domain.ClosedLotRecord{}, nil
	}
	return slices.Clone(records), nil
}

func (s *MemoryStore) SaveDailySummaries(_ context.Context, method domain.Method, days []report.DaySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.daily[method] = slices.Clone(days)
	return nil
}

func (s *MemoryStore) ListDailySummaries(_ context.Context, method domain.Method) ([]report.DaySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days := s.daily[method]
	if days == nil {
		return []report.DaySummary{}, nil
	}
	return slices.Clone(days), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
