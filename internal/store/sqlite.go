package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tradesys/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

// SQLiteStore implements ResultStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	label       TEXT NOT NULL,
	start_date  TEXT NOT NULL,
	end_date    TEXT NOT NULL,
	capital     REAL NOT NULL,
	final_nav   REAL NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS nav (
	run_id         INTEGER NOT NULL REFERENCES runs(id),
	date           TEXT NOT NULL,
	nav            REAL NOT NULL,
	cash           REAL NOT NULL,
	holdings_value REAL NOT NULL,
	num_positions  INTEGER NOT NULL,
	PRIMARY KEY (run_id, date)
);

CREATE TABLE IF NOT EXISTS trades (
	run_id            INTEGER NOT NULL REFERENCES runs(id),
	seq               INTEGER NOT NULL,
	symbol            TEXT NOT NULL,
	signal_date       TEXT NOT NULL,
	entry_date        TEXT NOT NULL,
	exit_date         TEXT NOT NULL,
	entry_price       REAL NOT NULL,
	exit_price        REAL NOT NULL,
	shares            INTEGER NOT NULL,
	entry_value       REAL NOT NULL,
	exit_value        REAL NOT NULL,
	entry_cost        REAL NOT NULL,
	exit_cost         REAL NOT NULL,
	pnl               REAL NOT NULL,
	return            REAL NOT NULL,
	hold_days         INTEGER NOT NULL,
	exit_reason       TEXT NOT NULL,
	exit_time         TEXT NOT NULL,
	stop_price        REAL NOT NULL,
	take_profit_price REAL NOT NULL,
	fac_l1            REAL NOT NULL,
	fac_l2            REAL NOT NULL,
	fac_s1            REAL NOT NULL,
	fac_s2            REAL NOT NULL,
	fac_s3            REAL NOT NULL,
	fac_s4            REAL NOT NULL,
	fac_f1            REAL NOT NULL,
	fac_f2            REAL NOT NULL,
	fac_r1            REAL NOT NULL,
	fac_alpha_score   REAL NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS orders (
	run_id      INTEGER NOT NULL REFERENCES runs(id),
	seq         INTEGER NOT NULL,
	order_id    TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	reason      TEXT NOT NULL,
	submit_date TEXT NOT NULL,
	valid_date  TEXT NOT NULL,
	quantity    INTEGER NOT NULL,
	price_low   REAL NOT NULL,
	price_high  REAL NOT NULL,
	signal_date TEXT NOT NULL,
	status      TEXT NOT NULL,
	reject      TEXT NOT NULL,
	fill_price  REAL NOT NULL,
	fill_time   TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS positions (
	run_id            INTEGER NOT NULL REFERENCES runs(id),
	date              TEXT NOT NULL,
	symbol            TEXT NOT NULL,
	signal_date       TEXT NOT NULL,
	entry_date        TEXT NOT NULL,
	entry_price       REAL NOT NULL,
	shares            INTEGER NOT NULL,
	hold_days         INTEGER NOT NULL,
	open              REAL NOT NULL,
	high              REAL NOT NULL,
	low               REAL NOT NULL,
	close             REAL NOT NULL,
	market_value      REAL NOT NULL,
	pnl               REAL NOT NULL,
	return            REAL NOT NULL,
	weight            REAL NOT NULL,
	stop_price        REAL NOT NULL,
	take_profit_price REAL NOT NULL,
	stop_distance     REAL NOT NULL,
	tp_distance       REAL NOT NULL,
	hit_stop_eod      INTEGER NOT NULL,
	hit_tp_eod        INTEGER NOT NULL,
	fac_l1            REAL NOT NULL,
	fac_l2            REAL NOT NULL,
	fac_s1            REAL NOT NULL,
	fac_s2            REAL NOT NULL,
	fac_s3            REAL NOT NULL,
	fac_s4            REAL NOT NULL,
	fac_f1            REAL NOT NULL,
	fac_f2            REAL NOT NULL,
	fac_r1            REAL NOT NULL,
	fac_alpha_score   REAL NOT NULL,
	PRIMARY KEY (run_id, date, symbol)
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// CreateRun inserts a new run row and returns its ID.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) (int64, error) {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (label, start_date, end_date, capital, final_nav, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.Label,
		run.StartDate.Format(domain.DateLayout),
		run.EndDate.Format(domain.DateLayout),
		run.Capital,
		run.FinalNAV,
		run.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	run.ID = id
	return id, nil
}

// ListRuns returns all runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, start_date, end_date, capital, final_nav, created_at
		 FROM runs ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRun retrieves a single run by ID. Returns sql.ErrNoRows if absent.
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, label, start_date, end_date, capital, final_nav, created_at
		 FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var start, end, created string
	if err := row.Scan(&r.ID, &r.Label, &start, &end, &r.Capital, &r.FinalNAV, &created); err != nil {
		return nil, err
	}
	var err error
	if r.StartDate, err = time.Parse(domain.DateLayout, start); err != nil {
		return nil, err
	}
	if r.EndDate, err = time.Parse(domain.DateLayout, end); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return nil, err
	}
	return &r, nil
}

// ---------------------------------------------------------------------------
// Result logs
// ---------------------------------------------------------------------------

// SaveNAV persists the NAV series for a run in one transaction.
func (s *SQLiteStore) SaveNAV(ctx context.Context, runID int64, nav []domain.NAVPoint) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO nav (run_id, date, nav, cash, holdings_value, num_positions)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range nav {
			if _, err := stmt.ExecContext(ctx, runID,
				p.Date.Format(domain.DateLayout), p.NAV, p.Cash, p.HoldingsValue, p.NumPositions); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadNAV returns a run's NAV series in date order.
func (s *SQLiteStore) ReadNAV(ctx context.Context, runID int64) ([]domain.NAVPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, nav, cash, holdings_value, num_positions
		 FROM nav WHERE run_id = ? ORDER BY date`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.NAVPoint
	for rows.Next() {
		var p domain.NAVPoint
		var date string
		if err := rows.Scan(&date, &p.NAV, &p.Cash, &p.HoldingsValue, &p.NumPositions); err != nil {
			return nil, err
		}
		if p.Date, err = time.Parse(domain.DateLayout, date); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveTrades persists the trade log for a run in one transaction.
func (s *SQLiteStore) SaveTrades(ctx context.Context, runID int64, trades []domain.TradeRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO trades (run_id, seq, symbol, signal_date, entry_date, exit_date,
				entry_price, exit_price, shares, entry_value, exit_value, entry_cost, exit_cost,
				pnl, return, hold_days, exit_reason, exit_time, stop_price, take_profit_price,
				fac_l1, fac_l2, fac_s1, fac_s2, fac_s3, fac_s4, fac_f1, fac_f2, fac_r1, fac_alpha_score)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, t := range trades {
			args := []any{runID, i,
				t.Symbol,
				t.SignalDate.Format(domain.DateLayout),
				t.EntryDate.Format(domain.DateLayout),
				t.ExitDate.Format(domain.DateLayout),
				t.EntryPrice, t.ExitPrice, t.Shares,
				t.EntryValue, t.ExitValue, t.EntryCost, t.ExitCost,
				t.PnL, t.Return, t.HoldDays,
				string(t.ExitReason),
				t.ExitTime.Format(time.RFC3339),
				t.StopPrice, t.TakeProfitPrice,
			}
			args = append(args, snapshotValues(t.FactorSnapshot)...)
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadTrades returns a run's trade log in recorded order.
func (s *SQLiteStore) ReadTrades(ctx context.Context, runID int64) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, signal_date, entry_date, exit_date, entry_price, exit_price, shares,
			entry_value, exit_value, entry_cost, exit_cost, pnl, return, hold_days,
			exit_reason, exit_time, stop_price, take_profit_price,
			fac_l1, fac_l2, fac_s1, fac_s2, fac_s3, fac_s4, fac_f1, fac_f2, fac_r1, fac_alpha_score
		 FROM trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var signal, entry, exit, exitTime, reason string
		fac := make([]float64, len(factorNames)+1)
		dest := []any{&t.Symbol, &signal, &entry, &exit,
			&t.EntryPrice, &t.ExitPrice, &t.Shares,
			&t.EntryValue, &t.ExitValue, &t.EntryCost, &t.ExitCost,
			&t.PnL, &t.Return, &t.HoldDays,
			&reason, &exitTime, &t.StopPrice, &t.TakeProfitPrice,
		}
		for i := range fac {
			dest = append(dest, &fac[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		t.FactorSnapshot = snapshotFromValues(fac)
		t.ExitReason = domain.OrderReason(reason)
		if t.SignalDate, err = time.Parse(domain.DateLayout, signal); err != nil {
			return nil, err
		}
		if t.EntryDate, err = time.Parse(domain.DateLayout, entry); err != nil {
			return nil, err
		}
		if t.ExitDate, err = time.Parse(domain.DateLayout, exit); err != nil {
			return nil, err
		}
		if t.ExitTime, err = time.Parse(time.RFC3339, exitTime); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveOrders persists the order log for a run in one transaction.
func (s *SQLiteStore) SaveOrders(ctx context.Context, runID int64, orders []domain.OrderRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO orders (run_id, seq, order_id, symbol, side, reason,
				submit_date, valid_date, quantity, price_low, price_high, signal_date,
				status, reject, fill_price, fill_time)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, o := range orders {
			signal := ""
			if !o.SignalDate.IsZero() {
				signal = o.SignalDate.Format(domain.DateLayout)
			}
			fillTime := ""
			if !o.FillTime.IsZero() {
				fillTime = o.FillTime.Format(time.RFC3339)
			}
			if _, err := stmt.ExecContext(ctx, runID, i,
				o.ID, o.Symbol, string(o.Side), string(o.Reason),
				o.SubmitDate.Format(domain.DateLayout),
				o.ValidDate.Format(domain.DateLayout),
				o.Quantity, o.PriceLow, o.PriceHigh, signal,
				string(o.Status), string(o.Reject), o.FillPrice, fillTime); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadOrders returns a run's order log in submission order.
func (s *SQLiteStore) ReadOrders(ctx context.Context, runID int64) ([]domain.OrderRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT order_id, symbol, side, reason, submit_date, valid_date,
			quantity, price_low, price_high, signal_date, status, reject, fill_price, fill_time
		 FROM orders WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OrderRecord
	for rows.Next() {
		var o domain.OrderRecord
		var side, reason, submit, valid, signal, status, reject, fillTime string
		if err := rows.Scan(&o.ID, &o.Symbol, &side, &reason, &submit, &valid,
			&o.Quantity, &o.PriceLow, &o.PriceHigh, &signal, &status, &reject,
			&o.FillPrice, &fillTime); err != nil {
			return nil, err
		}
		o.Side = domain.OrderSide(side)
		o.Reason = domain.OrderReason(reason)
		o.Status = domain.OrderStatus(status)
		o.Reject = domain.RejectReason(reject)
		if o.SubmitDate, err = time.Parse(domain.DateLayout, submit); err != nil {
			return nil, err
		}
		if o.ValidDate, err = time.Parse(domain.DateLayout, valid); err != nil {
			return nil, err
		}
		if signal != "" {
			if o.SignalDate, err = time.Parse(domain.DateLayout, signal); err != nil {
				return nil, err
			}
		}
		if fillTime != "" {
			if o.FillTime, err = time.Parse(time.RFC3339, fillTime); err != nil {
				return nil, err
			}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SavePositions persists the daily position snapshots for a run in one
// transaction.
func (s *SQLiteStore) SavePositions(ctx context.Context, runID int64, snaps []domain.PositionSnapshot) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO positions (run_id, date, symbol, signal_date, entry_date,
				entry_price, shares, hold_days, open, high, low, close,
				market_value, pnl, return, weight, stop_price, take_profit_price,
				stop_distance, tp_distance, hit_stop_eod, hit_tp_eod,
				fac_l1, fac_l2, fac_s1, fac_s2, fac_s3, fac_s4, fac_f1, fac_f2, fac_r1, fac_alpha_score)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range snaps {
			args := []any{runID,
				p.Date.Format(domain.DateLayout), p.Symbol,
				p.SignalDate.Format(domain.DateLayout),
				p.EntryDate.Format(domain.DateLayout),
				p.EntryPrice, p.Shares, p.HoldDays,
				p.Open, p.High, p.Low, p.Close,
				p.MarketValue, p.PnL, p.Return, p.Weight,
				p.StopPrice, p.TakeProfitPrice,
				p.StopDistance, p.TPDistance,
				boolInt(p.HitStopEOD), boolInt(p.HitTPEOD),
			}
			args = append(args, snapshotValues(p.FactorSnapshot)...)
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadPositions returns a run's daily position snapshots ordered by
// (date, symbol).
func (s *SQLiteStore) ReadPositions(ctx context.Context, runID int64) ([]domain.PositionSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, symbol, signal_date, entry_date, entry_price, shares, hold_days,
			open, high, low, close, market_value, pnl, return, weight,
			stop_price, take_profit_price, stop_distance, tp_distance, hit_stop_eod, hit_tp_eod,
			fac_l1, fac_l2, fac_s1, fac_s2, fac_s3, fac_s4, fac_f1, fac_f2, fac_r1, fac_alpha_score
		 FROM positions WHERE run_id = ? ORDER BY date, symbol`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PositionSnapshot
	for rows.Next() {
		var p domain.PositionSnapshot
		var date, signal, entry string
		var hitStop, hitTP int
		fac := make([]float64, len(factorNames)+1)
		dest := []any{&date, &p.Symbol, &signal, &entry,
			&p.EntryPrice, &p.Shares, &p.HoldDays,
			&p.Open, &p.High, &p.Low, &p.Close,
			&p.MarketValue, &p.PnL, &p.Return, &p.Weight,
			&p.StopPrice, &p.TakeProfitPrice,
			&p.StopDistance, &p.TPDistance, &hitStop, &hitTP,
		}
		for i := range fac {
			dest = append(dest, &fac[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		p.HitStopEOD = hitStop != 0
		p.HitTPEOD = hitTP != 0
		p.FactorSnapshot = snapshotFromValues(fac)
		if p.Date, err = time.Parse(domain.DateLayout, date); err != nil {
			return nil, err
		}
		if p.SignalDate, err = time.Parse(domain.DateLayout, signal); err != nil {
			return nil, err
		}
		if p.EntryDate, err = time.Parse(domain.DateLayout, entry); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// snapshotValues flattens a factor snapshot into insert arguments in
// factorNames order, with alpha_score last. A nil map yields zeros.
func snapshotValues(m map[string]float64) []any {
	vals := make([]any, 0, len(factorNames)+1)
	for _, name := range factorNames {
		vals = append(vals, m[name])
	}
	vals = append(vals, m["alpha_score"])
	return vals
}

func snapshotFromValues(vals []float64) map[string]float64 {
	m := make(map[string]float64, len(factorNames)+1)
	for i, name := range factorNames {
		m[name] = vals[i]
	}
	m["alpha_score"] = vals[len(factorNames)]
	return m
}
