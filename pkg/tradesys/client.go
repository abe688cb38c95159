// Package tradesys provides a Go SDK for the tradesys result-server API.
package tradesys

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tradesys/internal/util"
)

// Client provides a Go SDK for interacting with the tradesys result-server
// API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
}

// NewClient creates a new tradesys API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxAttempts: 3,
		baseDelay:   500 * time.Millisecond,
	}
}

// Run is one backtest run as returned by the API.
type Run struct {
	ID        int64   `json:"id"`
	Label     string  `json:"label"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	Capital   float64 `json:"capital"`
	FinalNAV  float64 `json:"final_nav"`
	CreatedAt string  `json:"created_at"`
}

// Summary holds a run's performance metrics.
type Summary struct {
	InitialNAV   float64 `json:"initialNav"`
	FinalNAV     float64 `json:"finalNav"`
	TotalReturn  float64 `json:"totalReturn"`
	AnnualReturn float64 `json:"annualReturn"`
	MaxDrawdown  float64 `json:"maxDrawdown"`
	SharpeRatio  float64 `json:"sharpeRatio"`
	TotalTrades  int     `json:"totalTrades"`
	WinRate      float64 `json:"winRate"`
	ProfitFactor float64 `json:"profitFactor"`
	AvgHoldDays  float64 `json:"avgHoldDays"`
}

// RunDetail is a run plus its computed performance metrics.
type RunDetail struct {
	Run     Run     `json:"run"`
	Summary Summary `json:"summary"`
}

// NAVDay is one point of a run's equity curve.
type NAVDay struct {
	Date          string  `json:"date"`
	NAV           float64 `json:"nav"`
	Cash          float64 `json:"cash"`
	HoldingsValue float64 `json:"holdings_value"`
	NumPositions  int     `json:"num_positions"`
}

// Trade is one closed-trade summary.
type Trade struct {
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

// Order is one order-log entry with its outcome.
type Order struct {
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

// Position is one daily position snapshot.
type Position struct {
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

// ListRuns retrieves all runs, newest first.
func (c *Client) ListRuns(ctx context.Context) ([]Run, error) {
	var resp struct {
		Runs []Run `json:"runs"`
	}
	if err := c.get(ctx, "/api/runs", &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// GetRun retrieves one run with its performance summary.
func (c *Client) GetRun(ctx context.Context, id int64) (*RunDetail, error) {
	var resp RunDetail
	if err := c.get(ctx, fmt.Sprintf("/api/runs/%d", id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetNAV retrieves a run's equity curve in date order.
func (c *Client) GetNAV(ctx context.Context, id int64) ([]NAVDay, error) {
	var resp struct {
		Days []NAVDay `json:"days"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/runs/%d/nav", id), &resp); err != nil {
		return nil, err
	}
	return resp.Days, nil
}

// GetTrades retrieves a run's trade log.
func (c *Client) GetTrades(ctx context.Context, id int64) ([]Trade, error) {
	var resp struct {
		Trades []Trade `json:"trades"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/runs/%d/trades", id), &resp); err != nil {
		return nil, err
	}
	return resp.Trades, nil
}

// GetOrders retrieves a run's order log in submission order.
func (c *Client) GetOrders(ctx context.Context, id int64) ([]Order, error) {
	var resp struct {
		Orders []Order `json:"orders"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/runs/%d/orders", id), &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// GetPositions retrieves a run's daily position snapshots, optionally
// filtered to a single date ("2006-01-02"; empty means all days).
func (c *Client) GetPositions(ctx context.Context, id int64, date string) ([]Position, error) {
	path := fmt.Sprintf("/api/runs/%d/positions", id)
	if date != "" {
		path += "?date=" + date
	}
	var resp struct {
		Positions []Position `json:"positions"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Positions, nil
}

// get performs a GET with retries and decodes the JSON response into out.
// Client errors (4xx) are not retried.
func (c *Client) get(ctx context.Context, path string, out any) error {
	var permErr error
	err := util.Retry(ctx, c.maxAttempts, c.baseDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			err := fmt.Errorf("GET %s: %s: %s", path, resp.Status, body)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				permErr = err
				return nil
			}
			return err
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
	if permErr != nil {
		return permErr
	}
	return err
}
