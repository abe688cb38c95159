// Package store defines storage interfaces for the backtest's input panels
// (daily bars, minute bars, factor rows) and its persisted results (runs,
// orders, trades, NAV series, position snapshots).
package store

import (
	"context"
	"time"

	"tradesys/internal/domain"
)

// PanelStore persists and retrieves the fully materialized market-data
// panels the simulation runs against.
type PanelStore interface {
	// WriteDailyBars persists a batch of daily bars.
	WriteDailyBars(ctx context.Context, bars []domain.PriceBar) error

	// ReadDailyPanel returns all daily bars for all symbols within [start, end].
	ReadDailyPanel(ctx context.Context, start, end time.Time) ([]domain.PriceBar, error)

	// WriteMinuteBars persists a batch of intraday bars.
	WriteMinuteBars(ctx context.Context, bars []domain.MinuteBar) error

	// ReadMinutePanel returns all intraday bars for all symbols within [start, end].
	ReadMinutePanel(ctx context.Context, start, end time.Time) ([]domain.MinuteBar, error)

	// WriteFactorRows persists a batch of factor rows.
	WriteFactorRows(ctx context.Context, rows []domain.FactorRow) error

	// ReadFactorPanel returns all factor rows within [start, end].
	ReadFactorPanel(ctx context.Context, start, end time.Time) ([]domain.FactorRow, error)

	// ListSymbols returns all distinct symbols with daily bar data.
	ListSymbols(ctx context.Context) ([]string, error)
}

// Run identifies one persisted backtest run.
type Run struct {
	ID        int64
	Label     string
	StartDate time.Time
	EndDate   time.Time
	Capital   float64
	FinalNAV  float64
	CreatedAt time.Time
}

// ResultStore persists and retrieves backtest results.
type ResultStore interface {
	// CreateRun inserts a new run row and returns its ID.
	CreateRun(ctx context.Context, run *Run) (int64, error)

	// ListRuns returns all runs, newest first.
	ListRuns(ctx context.Context) ([]Run, error)

	// GetRun retrieves a single run by ID.
	GetRun(ctx context.Context, id int64) (*Run, error)

	// SaveNAV persists the NAV series for a run.
	SaveNAV(ctx context.Context, runID int64, nav []domain.NAVPoint) error

	// SaveTrades persists the trade log for a run.
	SaveTrades(ctx context.Context, runID int64, trades []domain.TradeRecord) error

	// SaveOrders persists the order log for a run.
	SaveOrders(ctx context.Context, runID int64, orders []domain.OrderRecord) error

	// SavePositions persists the daily position snapshots for a run.
	SavePositions(ctx context.Context, runID int64, snaps []domain.PositionSnapshot) error

	// ReadNAV returns a run's NAV series in date order.
	ReadNAV(ctx context.Context, runID int64) ([]domain.NAVPoint, error)

	// ReadTrades returns a run's trade log ordered by exit date.
	ReadTrades(ctx context.Context, runID int64) ([]domain.TradeRecord, error)

	// ReadOrders returns a run's order log in submission order.
	ReadOrders(ctx context.Context, runID int64) ([]domain.OrderRecord, error)

	// ReadPositions returns a run's daily position snapshots.
	ReadPositions(ctx context.Context, runID int64) ([]domain.PositionSnapshot, error)
}
