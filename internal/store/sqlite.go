package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ OrderStore = (*SQLiteStore)(nil)
var _ SignalStore = (*SQLiteStore)(nil)
var _ ReportStore = (*SQLiteStore)(nil)

// SQLiteStore implements OrderStore, SignalStore, and ReportStore backed by
// a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	client_order_id  TEXT PRIMARY KEY,
	broker_id        TEXT NOT NULL,
	ticker           TEXT NOT NULL,
	side             TEXT NOT NULL,
	type             TEXT NOT NULL,
	time_in_force    TEXT NOT NULL,
	role             TEXT NOT NULL,
	qty              TEXT NOT NULL,
	limit_price      TEXT,
	stop_price       TEXT,
	status           TEXT NOT NULL,
	filled_qty       TEXT NOT NULL,
	filled_avg_price TEXT NOT NULL,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_status ON orders(status);

CREATE TABLE IF NOT EXISTS signals (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_id TEXT NOT NULL,
	ticker      TEXT NOT NULL,
	action      TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS signals_strategy ON signals(strategy_id, created_at);

CREATE TABLE IF NOT EXISTS reports (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	date           TEXT NOT NULL,
	result         TEXT NOT NULL,
	commissions    TEXT NOT NULL,
	result_percent TEXT NOT NULL
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns
// a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// OrderStore implementation
// ---------------------------------------------------------------------------

// SaveOrder inserts or replaces an order keyed by its client order ID.
func (s *SQLiteStore) SaveOrder(ctx context.Context, o *domain.Order) error {
	created, updated := o.CreatedAt, o.UpdatedAt
	if created.IsZero() {
		created = time.Now()
	}
	if updated.IsZero() {
		updated = created
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO orders (
			client_order_id, broker_id, ticker, side, type, time_in_force, role,
			qty, limit_price, stop_price, status, filled_qty, filled_avg_price,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ClientOrderID, o.ID, o.Ticker, string(o.Side), string(o.Type), string(o.TimeInForce), string(o.Role),
		o.Qty.String(), nullDecimal(o.LimitPrice), nullDecimal(o.StopPrice), string(o.Status),
		o.FilledQty.String(), o.FilledAvgPrice.String(),
		created.UnixMilli(), updated.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving order %s: %w", o.ClientOrderID, err)
	}
	return nil
}

const orderColumns = `client_order_id, broker_id, ticker, side, type, time_in_force, role,
	qty, limit_price, stop_price, status, filled_qty, filled_avg_price, created_at, updated_at`

// GetOrder retrieves a single order by its client order ID.
func (s *SQLiteStore) GetOrder(ctx context.Context, clientOrderID string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE client_order_id = ?`, clientOrderID)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", clientOrderID, ErrNotFound)
	}
	return o, err
}

// ListOrders returns all orders matching the given status.
func (s *SQLiteStore) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = ? ORDER BY created_at, client_order_id`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(sc scanner) (*domain.Order, error) {
	var (
		o                            domain.Order
		side, typ, tif, role, status string
		qty, filledQty, filledAvg    string
		limit, stop                  sql.NullString
		created, updated             int64
	)
	if err := sc.Scan(&o.ClientOrderID, &o.ID, &o.Ticker, &side, &typ, &tif, &role,
		&qty, &limit, &stop, &status, &filledQty, &filledAvg, &created, &updated); err != nil {
		return nil, err
	}
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(typ)
	o.TimeInForce = domain.TimeInForce(tif)
	o.Role = domain.OrderRole(role)
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = time.UnixMilli(created)
	o.UpdatedAt = time.UnixMilli(updated)

	var err error
	if o.Qty, err = decimal.NewFromString(qty); err != nil {
		return nil, err
	}
	if o.FilledQty, err = decimal.NewFromString(filledQty); err != nil {
		return nil, err
	}
	if o.FilledAvgPrice, err = decimal.NewFromString(filledAvg); err != nil {
		return nil, err
	}
	if o.LimitPrice, err = parseNullDecimal(limit); err != nil {
		return nil, err
	}
	if o.StopPrice, err = parseNullDecimal(stop); err != nil {
		return nil, err
	}
	return &o, nil
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ---------------------------------------------------------------------------
// SignalStore implementation
// ---------------------------------------------------------------------------

// SaveSignal inserts a new signal into the database.
func (s *SQLiteStore) SaveSignal(ctx context.Context, sig *domain.SignalRecord) error {
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (strategy_id, ticker, action, created_at) VALUES (?, ?, ?, ?)`,
		sig.StrategyID, sig.Ticker, string(sig.Action), sig.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("saving signal %s/%s: %w", sig.StrategyID, sig.Ticker, err)
	}
	sig.ID, err = res.LastInsertId()
	return err
}

// ListSignals returns the most recent signals for a strategy, up to limit.
func (s *SQLiteStore) ListSignals(ctx context.Context, strategyID string, limit int) ([]domain.SignalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy_id, ticker, action, created_at FROM signals
		WHERE strategy_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, strategyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SignalRecord
	for rows.Next() {
		var (
			r       domain.SignalRecord
			action  string
			created int64
		)
		if err := rows.Scan(&r.ID, &r.StrategyID, &r.Ticker, &action, &created); err != nil {
			return nil, err
		}
		r.Action = domain.Action(action)
		r.CreatedAt = time.UnixMilli(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// ReportStore implementation
// ---------------------------------------------------------------------------

// SaveReport appends a report row.
func (s *SQLiteStore) SaveReport(ctx context.Context, r *domain.Report) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (date, result, commissions, result_percent) VALUES (?, ?, ?, ?)`,
		r.Date.Format("2006-01-02"), r.Result.String(), r.Commissions.String(), r.ResultPercent.String())
	if err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	return nil
}

// ListReports returns the most recent reports, newest first.
func (s *SQLiteStore) ListReports(ctx context.Context, limit int) ([]domain.Report, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, result, commissions, result_percent FROM reports ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Report
	for rows.Next() {
		var date, result, comm, pct string
		if err := rows.Scan(&date, &result, &comm, &pct); err != nil {
			return nil, err
		}
		var r domain.Report
		var errs []error
		var err error
		r.Date, err = time.Parse("2006-01-02", date)
		errs = append(errs, err)
		r.Result, err = decimal.NewFromString(result)
		errs = append(errs, err)
		r.Commissions, err = decimal.NewFromString(comm)
		errs = append(errs, err)
		r.ResultPercent, err = decimal.NewFromString(pct)
		errs = append(errs, err)
		if err := errors.Join(errs...); err != nil {
			return nil, fmt.Errorf("decoding report row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
