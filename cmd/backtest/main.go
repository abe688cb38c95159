package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tradesys/internal/backtest"
	"tradesys/internal/config"
	"tradesys/internal/domain"
	"tradesys/internal/report"
	"tradesys/internal/store"
	"tradesys/internal/util"
)

func main() {
	label := flag.String("label", "", "label for this run (default: start..end)")
	flag.Parse()

	cfgPath := "config/tradesys.yaml"
	if p := os.Getenv("TRADESYS_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, closeLog, err := setupLogging(cfg, "backtest")
	if err != nil {
		log.Fatalf("setting up logging: %v", err)
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *label, logger); err != nil {
		logger.Error("backtest failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, label string, logger *slog.Logger) error {
	start, err := time.Parse(domain.DateLayout, cfg.Backtest.Start)
	if err != nil {
		return fmt.Errorf("parsing backtest start %q: %w", cfg.Backtest.Start, err)
	}
	end, err := time.Parse(domain.DateLayout, cfg.Backtest.End)
	if err != nil {
		return fmt.Errorf("parsing backtest end %q: %w", cfg.Backtest.End, err)
	}
	if label == "" {
		label = cfg.Backtest.Start + ".." + cfg.Backtest.End
	}

	cal, err := util.LoadTradingCalendar(cfg.Storage.CalendarPath)
	if err != nil {
		return fmt.Errorf("loading trading calendar: %w", err)
	}

	// Load the three input panels concurrently.
	ps := store.NewParquetStore(cfg.Storage.DataDir)

	var (
		daily   []domain.PriceBar
		minutes []domain.MinuteBar
		factors []domain.FactorRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		daily, err = ps.ReadDailyPanel(gctx, start, end)
		return err
	})
	g.Go(func() error {
		var err error
		minutes, err = ps.ReadMinutePanel(gctx, start, end)
		return err
	})
	g.Go(func() error {
		var err error
		// The first session executes the prior trading day's selection, so
		// read factors from two weeks before the window to cover holidays.
		factors, err = ps.ReadFactorPanel(gctx, start.AddDate(0, 0, -14), end)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("loading panels: %w", err)
	}
	logger.Info("panels loaded",
		"daily_bars", len(daily), "minute_bars", len(minutes), "factor_rows", len(factors))

	bt := backtest.New(
		backtest.Config{
			Start:              start,
			End:                end,
			Capital:            cfg.Backtest.Capital,
			MaxPositions:       cfg.Backtest.MaxPositions,
			MaxNewPositionsDay: cfg.Backtest.MaxNewPositionsDay,
			MaxHoldDays:        cfg.Backtest.MaxHoldDays,
			StopLossPct:        cfg.Backtest.StopLossPct,
			TakeProfitPct:      cfg.Backtest.TakeProfitPct,
			LotSize:            cfg.Backtest.LotSize,
			MinOrderValue:      cfg.Backtest.MinOrderValue,
			EntryBandPct:       cfg.Backtest.EntryBandPct,
		},
		backtest.NewMarketData(daily, minutes, factors),
		cal,
		backtest.CostModel{
			CommissionRate: cfg.Backtest.CommissionRate,
			StampTaxRate:   cfg.Backtest.StampTaxRate,
			MinCommission:  cfg.Backtest.MinCommission,
		},
		backtest.NewFillModel(cfg.Backtest.FillModel, cfg.Backtest.SlippageBps),
		logger,
	)

	result, err := bt.Run(ctx)
	if err != nil {
		return err
	}

	summary := report.Summarize(result.NAV, result.Trades)
	logger.Info("run summary",
		"final_nav", summary.FinalNAV,
		"total_return", summary.TotalReturn,
		"annual_return", summary.AnnualReturn,
		"max_drawdown", summary.MaxDrawdown,
		"sharpe", summary.SharpeRatio,
		"trades", summary.TotalTrades,
		"win_rate", summary.WinRate)

	// Persist everything under a new run ID.
	rs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening result store: %w", err)
	}
	defer rs.Close()

	runRow := &store.Run{
		Label:     label,
		StartDate: start,
		EndDate:   end,
		Capital:   cfg.Backtest.Capital,
		FinalNAV:  summary.FinalNAV,
	}
	runID, err := rs.CreateRun(ctx, runRow)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	if err := rs.SaveNAV(ctx, runID, result.NAV); err != nil {
		return fmt.Errorf("saving NAV: %w", err)
	}
	if err := rs.SaveTrades(ctx, runID, result.Trades); err != nil {
		return fmt.Errorf("saving trades: %w", err)
	}
	if err := rs.SaveOrders(ctx, runID, result.Orders); err != nil {
		return fmt.Errorf("saving orders: %w", err)
	}
	if err := rs.SavePositions(ctx, runID, result.Positions); err != nil {
		return fmt.Errorf("saving positions: %w", err)
	}

	logger.Info("run persisted", "run_id", runID, "label", label)
	return nil
}

// setupLogging writes to stdout and a dated log file, and installs the
// logger as the slog default.
func setupLogging(cfg *config.Config, name string) (*slog.Logger, func(), error) {
	logFileName := fmt.Sprintf("/tmp/%s-%s.log", name, time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}

	w := io.MultiWriter(os.Stdout, logFile)
	logger := util.NewLogger(w, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	return logger, func() { logFile.Close() }, nil
}
