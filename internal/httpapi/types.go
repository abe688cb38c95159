package httpapi

import (
	"time"

	"tradesys/internal/domain"
	"tradesys/internal/report"
)

// RunInfo is one run in the run list.
type RunInfo struct {
	ID        int64   `json:"id"`
	Label     string  `json:"label"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	Capital   float64 `json:"capital"`
	FinalNAV  float64 `json:"final_nav"`
	CreatedAt string  `json:"created_at"`
}

// RunsResponse is the response for GET /api/runs.
type RunsResponse struct {
	Runs []RunInfo `json:"runs"`
}

// RunDetailResponse is the response for GET /api/runs/{id}: the run row
// plus performance metrics computed from its NAV series and trade log.
type RunDetailResponse struct {
	Run     RunInfo        `json:"run"`
	Summary report.Summary `json:"summary"`
}

// NAVDay is one point of the equity curve.
type NAVDay struct {
	Date          string  `json:"date"`
	NAV           float64 `json:"nav"`
	Cash          float64 `json:"cash"`
	HoldingsValue float64 `json:"holdings_value"`
	NumPositions  int     `json:"num_positions"`
}

// NAVResponse is the response for GET /api/runs/{id}/nav.
type NAVResponse struct {
	RunID int64    `json:"run_id"`
	Days  []NAVDay `json:"days"`
}

// TradeRow is one closed-trade summary.
type TradeRow struct {
	Symbol          string  `json:"symbol"`
	SignalDate      string  `json:"signal_date"`
	EntryDate       string  `json:"entry_date"`
	ExitDate        string  `json:"exit_date"`
	EntryPrice      float64 `json:"entry_price"`
	ExitPrice       float64 `json:"exit_price"`
	Shares          int64   `json:"shares"`
	PnL             float64 `json:"pnl"`
	Return          float64 `json:"return"`
	HoldDays        int     `json:"hold_days"`
	ExitReason      string  `json:"exit_reason"`
	ExitTime        string  `json:"exit_time"`
	StopPrice       float64 `json:"stop_price"`
	TakeProfitPrice float64 `json:"take_profit_price"`

	Factors map[string]float64 `json:"factors,omitempty"`
}

// TradesResponse is the response for GET /api/runs/{id}/trades.
type TradesResponse struct {
	RunID  int64      `json:"run_id"`
	Trades []TradeRow `json:"trades"`
}

// OrderRow is one order-log entry with its outcome.
type OrderRow struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Reason     string  `json:"reason"`
	SubmitDate string  `json:"submit_date"`
	ValidDate  string  `json:"valid_date"`
	Quantity   int64   `json:"quantity"`
	PriceLow   float64 `json:"price_low"`
	PriceHigh  float64 `json:"price_high"`
	Status     string  `json:"status"`
	Reject     string  `json:"reject,omitempty"`
	FillPrice  float64 `json:"fill_price,omitempty"`
	FillTime   string  `json:"fill_time,omitempty"`
}

// OrdersResponse is the response for GET /api/runs/{id}/orders.
type OrdersResponse struct {
	RunID  int64      `json:"run_id"`
	Orders []OrderRow `json:"orders"`
}

// PositionRow is one daily position snapshot.
type PositionRow struct {
	Date            string  `json:"date"`
	Symbol          string  `json:"symbol"`
	EntryDate       string  `json:"entry_date"`
	EntryPrice      float64 `json:"entry_price"`
	Shares          int64   `json:"shares"`
	HoldDays        int     `json:"hold_days"`
	Close           float64 `json:"close"`
	MarketValue     float64 `json:"market_value"`
	PnL             float64 `json:"pnl"`
	Return          float64 `json:"return"`
	Weight          float64 `json:"weight"`
	StopPrice       float64 `json:"stop_price"`
	TakeProfitPrice float64 `json:"take_profit_price"`
	StopDistance    float64 `json:"stop_distance"`
	TPDistance      float64 `json:"tp_distance"`
	HitStopEOD      bool    `json:"hit_stop_eod"`
	HitTPEOD        bool    `json:"hit_tp_eod"`

	Factors map[string]float64 `json:"factors,omitempty"`
}

// PositionsResponse is the response for GET /api/runs/{id}/positions.
type PositionsResponse struct {
	RunID     int64         `json:"run_id"`
	Positions []PositionRow `json:"positions"`
}

func dateStr(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(domain.DateLayout)
}

func timeStr(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
