package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/efreitasn/pnlledger/internal/domain"
	"github.com/efreitasn/pnlledger/internal/report"
)

// timeLayout is fixed-width so stored timestamps sort lexically in
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const dateLayout = "2006-01-02"

// SQLiteStore is a Repository backed by a SQLite file. Decimals are
// stored as TEXT so they read back exactly as written.
type SQLiteStore struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and runs
// migrations. ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" a single
	// database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
		`
CREATE TABLE IF NOT EXISTS trades (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  trade_id TEXT NOT NULL UNIQUE,
  order_id TEXT NOT NULL DEFAULT '',
  asset TEXT NOT NULL,
  side TEXT NOT NULL,
  price TEXT NOT NULL,
  size TEXT NOT NULL,
  fee TEXT NOT NULL,
  total TEXT NOT NULL,
  timestamp TEXT NOT NULL,
  created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp, seq);`,
		`
CREATE TABLE IF NOT EXISTS lot_selections (
  sell_fill_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  lot_id TEXT NOT NULL,
  quantity TEXT NOT NULL,
  PRIMARY KEY (sell_fill_id, position)
);`,
		`
CREATE TABLE IF NOT EXISTS tax_records (
  id TEXT PRIMARY KEY,
  cost_basis_method TEXT NOT NULL,
  position INTEGER NOT NULL,
  trade_id TEXT NOT NULL,
  lot_id TEXT NOT NULL,
  asset TEXT NOT NULL,
  quantity TEXT NOT NULL,
  cost_basis TEXT NOT NULL,
  sale_price TEXT NOT NULL,
  gain_loss TEXT NOT NULL,
  acquired_at TEXT NOT NULL,
  date TEXT NOT NULL,
  holding_period INTEGER NOT NULL,
  tax_type TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_tax_records_method ON tax_records(cost_basis_method, position);`,
		`
CREATE TABLE IF NOT EXISTS daily_pnl (
  cost_basis_method TEXT NOT NULL,
  date TEXT NOT NULL,
  realized_pnl TEXT NOT NULL,
  total_pnl TEXT NOT NULL,
  proceeds TEXT NOT NULL,
  cost_basis TEXT NOT NULL,
  trades_count INTEGER NOT NULL,
  win_count INTEGER NOT NULL,
  loss_count INTEGER NOT NULL,
  zero_count INTEGER NOT NULL,
  created_at TEXT NOT NULL,
  PRIMARY KEY (cost_basis_method, date)
);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveFills(ctx context.Context, fills []domain.Fill) (int, error) {
	added := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO trades (trade_id, order_id, asset, side, price, size, fee, total, timestamp, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(trade_id) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := formatTime(time.Now())
		for _, f := range fills {
			res, err := stmt.ExecContext(ctx,
				f.ID, f.OrderID, f.Asset, string(f.Side),
				f.Price.String(), f.Quantity.String(), f.Fee.String(), f.Gross().String(),
				formatTime(f.ExecutedAt), now,
			)
			if err != nil {
				return fmt.Errorf("insert trade %s: %w", f.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			added += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func (s *SQLiteStore) ListFills(ctx context.Context) ([]domain.Fill, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT trade_id, order_id, asset, side, price, size, fee, timestamp
FROM trades ORDER BY timestamp, seq`)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	fills := []domain.Fill{}
	for rows.Next() {
		var (
			f                 domain.Fill
			side, price, size string
			fee, timestamp    string
		)
		if err := rows.Scan(&f.ID, &f.OrderID, &f.Asset, &side, &price, &size, &fee, &timestamp); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		f.Side = domain.Side(side)
		if f.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("trade %s price: %w", f.ID, err)
		}
		if f.Quantity, err = decimal.NewFromString(size); err != nil {
			return nil, fmt.Errorf("trade %s size: %w", f.ID, err)
		}
		if f.Fee, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("trade %s fee: %w", f.ID, err)
		}
		if f.ExecutedAt, err = time.Parse(timeLayout, timestamp); err != nil {
			return nil, fmt.Errorf("trade %s timestamp: %w", f.ID, err)
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

func (s *SQLiteStore) SaveSelections(ctx context.Context, sellFillID string, selections []domain.LotSelection) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM lot_selections WHERE sell_fill_id = ?`, sellFillID); err != nil {
			return err
		}
		for i, sel := range selections {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO lot_selections (sell_fill_id, position, lot_id, quantity) VALUES (?, ?, ?, ?)`,
				sellFillID, i, sel.LotID, sel.Quantity.String(),
			); err != nil {
				return fmt.Errorf("insert selection %s/%s: %w", sellFillID, sel.LotID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListSelections(ctx context.Context) (map[string][]domain.LotSelection, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT sell_fill_id, lot_id, quantity FROM lot_selections ORDER BY sell_fill_id, position`)
	if err != nil {
		return nil, fmt.Errorf("list selections: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.LotSelection)
	for rows.Next() {
		var sellID, lotID, qty string
		if err := rows.Scan(&sellID, &lotID, &qty); err != nil {
			return nil, fmt.Errorf("scan selection: %w", err)
		}
		q, err := decimal.NewFromString(qty)
		if err != nil {
			return nil, fmt.Errorf("selection %s/%s quantity: %w", sellID, lotID, err)
		}
		result[sellID] = append(result[sellID], domain.LotSelection{LotID: lotID, Quantity: q})
	}
	return result, rows.Err()
}

func (s *SQLiteStore) ReplaceClosedLots(ctx context.Context, method domain.Method, records []domain.ClosedLotRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tax_records WHERE cost_basis_method = ?`, method.Label()); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO tax_records (id, cost_basis_method, position, trade_id, lot_id, asset, quantity,
  cost_basis, sale_price, gain_loss, acquired_at, date, holding_period, tax_type)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, r := range records {
			if _, err := stmt.ExecContext(ctx,
				r.ID, method.Label(), i, r.SellFillID, r.LotID, r.Asset, r.Quantity.String(),
				r.CostBasis.String(), r.Proceeds.String(), r.GainLoss.String(),
				formatTime(r.AcquiredAt), formatTime(r.DisposedAt), r.HoldingPeriodDays, r.Treatment.Code(),
			); err != nil {
				return fmt.Errorf("insert tax record %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListClosedLots(ctx context.Context, method domain.Method) ([]domain.ClosedLotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, cost_basis_method, trade_id, lot_id, asset, quantity, cost_basis, sale_price, gain_loss,
  acquired_at, date, holding_period, tax_type
FROM tax_records WHERE cost_basis_method = ? ORDER BY position`, method.Label())
	if err != nil {
		return nil, fmt.Errorf("list tax records: %w", err)
	}
	defer rows.Close()

	records := []domain.ClosedLotRecord{}
	for rows.Next() {
		var (
			r                                domain.ClosedLotRecord
			label, qty, cost, proceeds, gain string
			acquired, disposed, taxType      string
		)
		if err := rows.Scan(&r.ID, &label, &r.SellFillID, &r.LotID, &r.Asset, &qty, &cost, &proceeds, &gain,
			&acquired, &disposed, &r.HoldingPeriodDays, &taxType); err != nil {
			return nil, fmt.Errorf("scan tax record: %w", err)
		}
		if r.Method, err = domain.ParseMethod(label); err != nil {
			return nil, fmt.Errorf("tax record %s: %w", r.ID, err)
		}
		if err := parseDecimals(r.ID, []string{qty, cost, proceeds, gain},
			&r.Quantity, &r.CostBasis, &r.Proceeds, &r.GainLoss); err != nil {
			return nil, err
		}
		if r.AcquiredAt, err = time.Parse(timeLayout, acquired); err != nil {
			return nil, fmt.Errorf("tax record %s acquired_at: %w", r.ID, err)
		}
		if r.DisposedAt, err = time.Parse(timeLayout, disposed); err != nil {
			return nil, fmt.Errorf("tax record %s date: %w", r.ID, err)
		}
		if taxType != "" {
			treatment, ok := domain.ParseTreatment(taxType)
			if !ok {
				return nil, fmt.Errorf("tax record %s: unknown tax_type %q", r.ID, taxType)
			}
			r.Treatment = treatment
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) SaveDailySummaries(ctx context.Context, method domain.Method, days []report.DaySummary) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM daily_pnl WHERE cost_basis_method = ?`, method.Label()); err != nil {
			return err
		}
		now := formatTime(time.Now())
		for _, d := range days {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO daily_pnl (cost_basis_method, date, realized_pnl, total_pnl, proceeds, cost_basis,
  trades_count, win_count, loss_count, zero_count, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				method.Label(), d.Date.Format(dateLayout), d.RealizedPnL.String(), d.CumulativePnL.String(),
				d.Proceeds.String(), d.CostBasis.String(),
				d.TradeCount, d.WinCount, d.LossCount, d.ZeroCount, now,
			); err != nil {
				return fmt.Errorf("insert daily_pnl %s: %w", d.Date.Format(dateLayout), err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListDailySummaries(ctx context.Context, method domain.Method) ([]report.DaySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT date, realized_pnl, total_pnl, proceeds, cost_basis, trades_count, win_count, loss_count, zero_count
FROM daily_pnl WHERE cost_basis_method = ? ORDER BY date`, method.Label())
	if err != nil {
		return nil, fmt.Errorf("list daily_pnl: %w", err)
	}
	defer rows.Close()

	days := []report.DaySummary{}
	for rows.Next() {
		var (
			d                                report.DaySummary
			date, pnl, total, proceeds, cost string
		)
		if err := rows.Scan(&date, &pnl, &total, &proceeds, &cost,
			&d.TradeCount, &d.WinCount, &d.LossCount, &d.ZeroCount); err != nil {
			return nil, fmt.Errorf("scan daily_pnl: %w", err)
		}
		if d.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("daily_pnl date %q: %w", date, err)
		}
		if err := parseDecimals("daily_pnl "+date, []string{pnl, total, proceeds, cost},
			&d.RealizedPnL, &d.CumulativePnL, &d.Proceeds, &d.CostBasis); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseDecimals(owner string, values []string, dst ...*decimal.Decimal) error {
	for i, v := range values {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("%s: column %d: %w", owner, i, err)
		}
		*dst[i] = d
	}
	return nil
}
