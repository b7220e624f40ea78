// Package store persists fills, lot selections, closed-lot records and
// daily summaries.
package store

import (
	"context"

	"github.com/efreitasn/pnlledger/internal/domain"
	"github.com/efreitasn/pnlledger/internal/report"
)

// Repository is the persistence boundary of the ledger service. All
// implementations are safe for concurrent use.
type Repository interface {
	// SaveFills stores fills, skipping IDs already present, and returns
	// how many were new.
	SaveFills(ctx context.Context, fills []domain.Fill) (int, error)
	// ListFills returns every fill by execution time ascending; equal
	// times keep insertion order.
	ListFills(ctx context.Context) ([]domain.Fill, error)

	// SaveSelections replaces the lot selections of one sell fill.
	SaveSelections(ctx context.Context, sellFillID string, selections []domain.LotSelection) error
	// ListSelections returns all selections keyed by sell fill ID.
	ListSelections(ctx context.Context) (map[string][]domain.LotSelection, error)

	// ReplaceClosedLots swaps the stored records of one method for
	// records, keeping their order.
	ReplaceClosedLots(ctx context.Context, method domain.Method, records []domain.ClosedLotRecord) error
	ListClosedLots(ctx context.Context, method domain.Method) ([]domain.ClosedLotRecord, error)

	// SaveDailySummaries replaces the daily P&L series of one method.
	SaveDailySummaries(ctx context.Context, method domain.Method, days []report.DaySummary) error
	ListDailySummaries(ctx context.Context, method domain.Method) ([]report.DaySummary, error)

	Close() error
}

// Open returns a SQLiteStore for path, or a MemoryStore when path is empty.
func Open(path string) (Repository, error) {
	if path == "" {
		return NewMemoryStore(), nil
	}
	return OpenSQLite(path)
}
