// Package httpapi serves backtest results over HTTP: the run list, each
// run's equity curve, trade log, order log, and daily position snapshots.
package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"tradesys/internal/domain"
	"tradesys/internal/report"
	"tradesys/internal/store"
)

// Server serves the backtest result API.
type Server struct {
	store store.ResultStore
	log   *slog.Logger
}

// NewServer creates a new result API server.
func NewServer(st store.ResultStore, log *slog.Logger) *Server {
	return &Server{store: st, log: log}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRunDetail)
	mux.HandleFunc("GET /api/runs/{id}/nav", s.handleNAV)
	mux.HandleFunc("GET /api/runs/{id}/trades", s.handleTrades)
	mux.HandleFunc("GET /api/runs/{id}/orders", s.handleOrders)
	mux.HandleFunc("GET /api/runs/{id}/positions", s.handlePositions)
	return corsMiddleware(mux)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context())
	if err != nil {
		s.log.Error("listing runs", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	infos := make([]RunInfo, len(runs))
	for i, run := range runs {
		infos[i] = runInfo(&run)
	}
	writeJSON(w, RunsResponse{Runs: infos})
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runID(w, r)
	if !ok {
		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("getting run", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	nav, err := s.store.ReadNAV(r.Context(), id)
	if err != nil {
		s.log.Error("reading nav", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	trades, err := s.store.ReadTrades(r.Context(), id)
	if err != nil {
		s.log.Error("reading trades", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, RunDetailResponse{
		Run:     runInfo(run),
		Summary: report.Summarize(nav, trades),
	})
}

func (s *Server) handleNAV(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runID(w, r)
	if !ok {
		return
	}

	nav, err := s.store.ReadNAV(r.Context(), id)
	if err != nil {
		s.log.Error("reading nav", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	days := make([]NAVDay, len(nav))
	for i, p := range nav {
		days[i] = NAVDay{
			Date:          dateStr(p.Date),
			NAV:           p.NAV,
			Cash:          p.Cash,
			HoldingsValue: p.HoldingsValue,
			NumPositions:  p.NumPositions,
		}
	}
	writeJSON(w, NAVResponse{RunID: id, Days: days})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runID(w, r)
	if !ok {
		return
	}

	trades, err := s.store.ReadTrades(r.Context(), id)
	if err != nil {
		s.log.Error("reading trades", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rows := make([]TradeRow, len(trades))
	for i, t := range trades {
		rows[i] = TradeRow{
			Symbol:          t.Symbol,
			SignalDate:      dateStr(t.SignalDate),
			EntryDate:       dateStr(t.EntryDate),
			ExitDate:        dateStr(t.ExitDate),
			EntryPrice:      t.EntryPrice,
			ExitPrice:       t.ExitPrice,
			Shares:          t.Shares,
			PnL:             t.PnL,
			Return:          t.Return,
			HoldDays:        t.HoldDays,
			ExitReason:      string(t.ExitReason),
			ExitTime:        timeStr(t.ExitTime),
			StopPrice:       t.StopPrice,
			TakeProfitPrice: t.TakeProfitPrice,
			Factors:         t.FactorSnapshot,
		}
	}
	writeJSON(w, TradesResponse{RunID: id, Trades: rows})
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runID(w, r)
	if !ok {
		return
	}

	orders, err := s.store.ReadOrders(r.Context(), id)
	if err != nil {
		s.log.Error("reading orders", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rows := make([]OrderRow, len(orders))
	for i, o := range orders {
		rows[i] = OrderRow{
			ID:         o.ID,
			Symbol:     o.Symbol,
			Side:       string(o.Side),
			Reason:     string(o.Reason),
			SubmitDate: dateStr(o.SubmitDate),
			ValidDate:  dateStr(o.ValidDate),
			Quantity:   o.Quantity,
			PriceLow:   o.PriceLow,
			PriceHigh:  o.PriceHigh,
			Status:     string(o.Status),
			Reject:     string(o.Reject),
			FillPrice:  o.FillPrice,
			FillTime:   timeStr(o.FillTime),
		}
	}
	writeJSON(w, OrdersResponse{RunID: id, Orders: rows})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runID(w, r)
	if !ok {
		return
	}

	snaps, err := s.store.ReadPositions(r.Context(), id)
	if err != nil {
		s.log.Error("reading positions", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Optional ?date= filter.
	if date := r.URL.Query().Get("date"); date != "" {
		d, err := time.Parse(domain.DateLayout, date)
		if err != nil {
			http.Error(w, "invalid date parameter", http.StatusBadRequest)
			return
		}
		filtered := snaps[:0]
		for _, p := range snaps {
			if p.Date.Equal(d) {
				filtered = append(filtered, p)
			}
		}
		snaps = filtered
	}

	rows := make([]PositionRow, len(snaps))
	for i, p := range snaps {
		rows[i] = PositionRow{
			Date:            dateStr(p.Date),
			Symbol:          p.Symbol,
			EntryDate:       dateStr(p.EntryDate),
			EntryPrice:      p.EntryPrice,
			Shares:          p.Shares,
			HoldDays:        p.HoldDays,
			Close:           p.Close,
			MarketValue:     p.MarketValue,
			PnL:             p.PnL,
			Return:          p.Return,
			Weight:          p.Weight,
			StopPrice:       p.StopPrice,
			TakeProfitPrice: p.TakeProfitPrice,
			StopDistance:    p.StopDistance,
			TPDistance:      p.TPDistance,
			HitStopEOD:      p.HitStopEOD,
			HitTPEOD:        p.HitTPEOD,
			Factors:         p.FactorSnapshot,
		}
	}
	writeJSON(w, PositionsResponse{RunID: id, Positions: rows})
}

// runID parses the {id} path value, writing an error response on failure.
func (s *Server) runID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func runInfo(run *store.Run) RunInfo {
	return RunInfo{
		ID:        run.ID,
		Label:     run.Label,
		StartDate: dateStr(run.StartDate),
		EndDate:   dateStr(run.EndDate),
		Capital:   run.Capital,
		FinalNAV:  run.FinalNAV,
		CreatedAt: run.CreatedAt.Format(time.RFC3339),
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writing JSON response", "error", err)
	}
}
