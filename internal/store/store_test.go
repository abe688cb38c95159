package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"tradesys/internal/domain"
)

func TestParquetStorePaths(t *testing.T) {
	ps := NewParquetStore("/data")

	dp := ps.dailyPath("sh.600000", 2023)
	wantDaily := filepath.Join("/data", "cn", "daily", "sh.600000", "2023.parquet")
	if dp != wantDaily {
		t.Errorf("dailyPath mismatch:\n  got  %s\n  want %s", dp, wantDaily)
	}

	mp := ps.minutePath("sz.000001", "2023-06-15")
	wantMinute := filepath.Join("/data", "cn", "minute", "sz.000001", "2023-06-15.parquet")
	if mp != wantMinute {
		t.Errorf("minutePath mismatch:\n  got  %s\n  want %s", mp, wantMinute)
	}

	fp := ps.factorPath("2023-06-15")
	wantFactor := filepath.Join("/data", "cn", "factor", "2023-06-15.parquet")
	if fp != wantFactor {
		t.Errorf("factorPath mismatch:\n  got  %s\n  want %s", fp, wantFactor)
	}
}

func TestParquetStoreWriteReadDailyBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.PriceBar{
		{
			Symbol: "sh.600000",
			Date:   time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
			Open:   10.00, High: 10.30, Low: 9.90, Close: 10.20,
			PrevClose: 10.00, Volume: 1_000_000, Turnover: 10_100_000,
			TradeStatus: domain.TradeStatusTrading,
		},
		{
			Symbol: "sh.600000",
			Date:   time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC),
			Open:   10.20, High: 10.50, Low: 10.10, Close: 10.40,
			PrevClose: 10.20, Volume: 900_000, Turnover: 9_300_000,
			TradeStatus: domain.TradeStatusTrading,
		},
	}
	if err := ps.WriteDailyBars(ctx, bars); err != nil {
		t.Fatalf("WriteDailyBars: %v", err)
	}

	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadDailyPanel(ctx, start, end)
	if err != nil {
		t.Fatalf("ReadDailyPanel: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadDailyPanel returned %d bars, want 2", len(got))
	}
	if got[0].Close != 10.20 {
		t.Errorf("first bar Close = %v, want 10.20", got[0].Close)
	}
	if got[1].Close != 10.40 {
		t.Errorf("second bar Close = %v, want 10.40", got[1].Close)
	}
	if got[0].TradeStatus != domain.TradeStatusTrading {
		t.Errorf("TradeStatus = %d, want %d", got[0].TradeStatus, domain.TradeStatusTrading)
	}
}

func TestParquetStoreMergeDailyBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	first := []domain.PriceBar{{
		Symbol: "sz.000001",
		Date:   time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC),
		Open:   12.0, High: 12.5, Low: 11.9, Close: 12.3,
		PrevClose: 12.0, Volume: 500_000, TradeStatus: domain.TradeStatusTrading,
	}}
	if err := ps.WriteDailyBars(ctx, first); err != nil {
		t.Fatalf("WriteDailyBars (first): %v", err)
	}

	// Same symbol+year, one duplicate date with an updated close and one
	// new date: the duplicate must be replaced, not doubled.
	second := []domain.PriceBar{
		{
			Symbol: "sz.000001",
			Date:   time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC),
			Open:   12.0, High: 12.5, Low: 11.9, Close: 12.35,
			PrevClose: 12.0, Volume: 500_000, TradeStatus: domain.TradeStatusTrading,
		},
		{
			Symbol: "sz.000001",
			Date:   time.Date(2023, 3, 2, 0, 0, 0, 0, time.UTC),
			Open:   12.3, High: 12.8, Low: 12.2, Close: 12.6,
			PrevClose: 12.35, Volume: 600_000, TradeStatus: domain.TradeStatusTrading,
		},
	}
	if err := ps.WriteDailyBars(ctx, second); err != nil {
		t.Fatalf("WriteDailyBars (second): %v", err)
	}

	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadDailyPanel(ctx, start, end)
	if err != nil {
		t.Fatalf("ReadDailyPanel: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadDailyPanel returned %d bars after merge, want 2", len(got))
	}
	if got[0].Close != 12.35 {
		t.Errorf("merged bar Close = %v, want 12.35 (incoming wins)", got[0].Close)
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.PriceBar{
		{Symbol: "sh.600000", Date: time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC), Open: 10, High: 10, Low: 10, Close: 10, TradeStatus: 1},
		{Symbol: "sz.000001", Date: time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC), Open: 12, High: 12, Low: 12, Close: 12, TradeStatus: 1},
	}
	if err := ps.WriteDailyBars(ctx, bars); err != nil {
		t.Fatalf("WriteDailyBars: %v", err)
	}

	symbols, err := ps.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 {
		t.Fatalf("ListSymbols returned %d symbols, want 2", len(symbols))
	}
	if symbols[0] != "sh.600000" || symbols[1] != "sz.000001" {
		t.Errorf("ListSymbols = %v, want [sh.600000 sz.000001]", symbols)
	}
}

func TestParquetStoreWriteReadMinuteBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	day := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	bars := []domain.MinuteBar{
		{
			Symbol: "sh.600000", Date: day,
			Timestamp: time.Date(2023, 6, 1, 9, 31, 0, 0, time.UTC),
			Open:      10.00, High: 10.05, Low: 9.98, Close: 10.02, Volume: 12000,
		},
		{
			Symbol: "sh.600000", Date: day,
			Timestamp: time.Date(2023, 6, 1, 9, 32, 0, 0, time.UTC),
			Open:      10.02, High: 10.08, Low: 10.01, Close: 10.06, Volume: 9000,
		},
	}
	if err := ps.WriteMinuteBars(ctx, bars); err != nil {
		t.Fatalf("WriteMinuteBars: %v", err)
	}

	got, err := ps.ReadMinutePanel(ctx, day, day)
	if err != nil {
		t.Fatalf("ReadMinutePanel: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadMinutePanel returned %d bars, want 2", len(got))
	}
	if !got[0].Timestamp.Before(got[1].Timestamp) {
		t.Errorf("minute bars not in timestamp order: %v, %v", got[0].Timestamp, got[1].Timestamp)
	}
}

func TestParquetStoreWriteReadFactorRows(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	day := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []domain.FactorRow{
		{
			Symbol: "sh.600000", Date: day,
			Factors:    map[string]float64{"L1": 0.8, "S1": -0.2, "R1": 1.4},
			AlphaScore: 2.5,
		},
		{
			Symbol: "sz.000001", Date: day,
			Factors:    map[string]float64{"L1": 0.3, "S1": 0.1, "R1": 0.9},
			AlphaScore: 1.1,
		},
	}
	if err := ps.WriteFactorRows(ctx, rows); err != nil {
		t.Fatalf("WriteFactorRows: %v", err)
	}

	got, err := ps.ReadFactorPanel(ctx, day, day)
	if err != nil {
		t.Fatalf("ReadFactorPanel: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadFactorPanel returned %d rows, want 2", len(got))
	}
	// Sorted by (date, symbol).
	if got[0].Symbol != "sh.600000" {
		t.Errorf("first row symbol = %s, want sh.600000", got[0].Symbol)
	}
	if got[0].AlphaScore != 2.5 {
		t.Errorf("AlphaScore = %v, want 2.5", got[0].AlphaScore)
	}
	if got[0].Factors["L1"] != 0.8 {
		t.Errorf("Factors[L1] = %v, want 0.8", got[0].Factors["L1"])
	}
	// Unnamed factor columns round-trip to zero, not missing keys.
	if got[0].Factors["S2"] != 0 {
		t.Errorf("Factors[S2] = %v, want 0", got[0].Factors["S2"])
	}
}

func TestSQLiteStoreRunLifecycle(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "results.db")
	st, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q): %v", dbPath, err)
	}
	defer st.Close()
	ctx := context.Background()

	run := &Run{
		Label:     "baseline",
		StartDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		Capital:   100000,
		FinalNAV:  112500,
	}
	id, err := st.CreateRun(ctx, run)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if id == 0 {
		t.Fatal("CreateRun returned zero ID")
	}

	got, err := st.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Label != "baseline" || got.Capital != 100000 || got.FinalNAV != 112500 {
		t.Errorf("GetRun = %+v", got)
	}
	if !got.StartDate.Equal(run.StartDate) {
		t.Errorf("StartDate = %v, want %v", got.StartDate, run.StartDate)
	}

	runs, err := st.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != id {
		t.Errorf("ListRuns = %+v, want single run %d", runs, id)
	}

	if _, err := st.GetRun(ctx, id+1); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetRun(missing) error = %v, want sql.ErrNoRows", err)
	}
}

func TestSQLiteStoreResultLogsRoundtrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "results.db")
	st, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	run := &Run{
		Label:     "logs",
		StartDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC),
		Capital:   100000,
		FinalNAV:  101000,
	}
	id, err := st.CreateRun(ctx, run)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	nav := []domain.NAVPoint{
		{Date: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), NAV: 100000, Cash: 100000},
		{Date: time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC), NAV: 100500, Cash: 40000, HoldingsValue: 60500, NumPositions: 2},
	}
	if err := st.SaveNAV(ctx, id, nav); err != nil {
		t.Fatalf("SaveNAV: %v", err)
	}
	gotNAV, err := st.ReadNAV(ctx, id)
	if err != nil {
		t.Fatalf("ReadNAV: %v", err)
	}
	if len(gotNAV) != 2 {
		t.Fatalf("ReadNAV returned %d points, want 2", len(gotNAV))
	}
	if gotNAV[1].NumPositions != 2 || gotNAV[1].HoldingsValue != 60500 {
		t.Errorf("second NAV point = %+v", gotNAV[1])
	}

	trades := []domain.TradeRecord{{
		Symbol:     "sh.600000",
		SignalDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		EntryDate:  time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC),
		ExitDate:   time.Date(2023, 6, 5, 0, 0, 0, 0, time.UTC),
		EntryPrice: 10.00, ExitPrice: 10.50, Shares: 1000,
		EntryValue: 10000, ExitValue: 10500,
		EntryCost: 5, ExitCost: 10.25, PnL: 484.75, Return: 0.048475,
		HoldDays: 2, ExitReason: domain.ReasonTakeProfit,
		ExitTime:  time.Date(2023, 6, 5, 10, 15, 0, 0, time.UTC),
		StopPrice: 9.50, TakeProfitPrice: 11.00,
		FactorSnapshot: map[string]float64{
			"L1": 1.2, "L2": -0.3, "S1": 0.5, "S2": 0.1, "S3": 0, "S4": 2.4,
			"F1": 0.9, "F2": -1.1, "R1": 0.02, "alpha_score": 0.87,
		},
	}}
	if err := st.SaveTrades(ctx, id, trades); err != nil {
		t.Fatalf("SaveTrades: %v", err)
	}
	gotTrades, err := st.ReadTrades(ctx, id)
	if err != nil {
		t.Fatalf("ReadTrades: %v", err)
	}
	if len(gotTrades) != 1 {
		t.Fatalf("ReadTrades returned %d trades, want 1", len(gotTrades))
	}
	tr := gotTrades[0]
	if tr.ExitReason != domain.ReasonTakeProfit {
		t.Errorf("ExitReason = %s, want %s", tr.ExitReason, domain.ReasonTakeProfit)
	}
	if !tr.ExitTime.Equal(trades[0].ExitTime) {
		t.Errorf("ExitTime = %v, want %v", tr.ExitTime, trades[0].ExitTime)
	}
	if tr.PnL != 484.75 {
		t.Errorf("PnL = %v, want 484.75", tr.PnL)
	}
	if tr.FactorSnapshot["L1"] != 1.2 || tr.FactorSnapshot["alpha_score"] != 0.87 {
		t.Errorf("trade factor snapshot = %v", tr.FactorSnapshot)
	}

	orders := []domain.OrderRecord{
		{
			Order: domain.Order{
				ID: "O000001", Symbol: "sh.600000",
				Side: domain.OrderSideBuy, Reason: domain.ReasonEntry,
				SubmitDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
				ValidDate:  time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC),
				Quantity:   1000, PriceLow: 9.97, PriceHigh: 10.03,
				SignalDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
			},
			Status:    domain.OrderStatusFilled,
			FillPrice: 10.00,
			FillTime:  time.Date(2023, 6, 2, 9, 31, 0, 0, time.UTC),
		},
		{
			Order: domain.Order{
				ID: "O000002", Symbol: "sz.000001",
				Side: domain.OrderSideBuy, Reason: domain.ReasonEntry,
				SubmitDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
				ValidDate:  time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC),
				Quantity:   500, PriceLow: 11.96, PriceHigh: 12.04,
			},
			Status: domain.OrderStatusRejected,
			Reject: domain.RejectRangeNotTouched,
		},
	}
	if err := st.SaveOrders(ctx, id, orders); err != nil {
		t.Fatalf("SaveOrders: %v", err)
	}
	gotOrders, err := st.ReadOrders(ctx, id)
	if err != nil {
		t.Fatalf("ReadOrders: %v", err)
	}
	if len(gotOrders) != 2 {
		t.Fatalf("ReadOrders returned %d orders, want 2", len(gotOrders))
	}
	if gotOrders[0].ID != "O000001" || gotOrders[1].ID != "O000002" {
		t.Errorf("order log out of submission order: %s, %s", gotOrders[0].ID, gotOrders[1].ID)
	}
	if gotOrders[1].Status != domain.OrderStatusRejected || gotOrders[1].Reject != domain.RejectRangeNotTouched {
		t.Errorf("rejected order = %+v", gotOrders[1])
	}
	if !gotOrders[1].FillTime.IsZero() {
		t.Errorf("rejected order FillTime = %v, want zero", gotOrders[1].FillTime)
	}

	snaps := []domain.PositionSnapshot{{
		Date:   time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC),
		Symbol: "sh.600000",
		SignalDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		EntryDate:  time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC),
		EntryPrice: 10.00, Shares: 1000, HoldDays: 0,
		Open: 10.00, High: 10.30, Low: 9.95, Close: 10.20,
		MarketValue: 10200, PnL: 195, Return: 0.0195, Weight: 0.102,
		StopPrice: 9.50, TakeProfitPrice: 11.00,
		StopDistance: 0.0686, TPDistance: 0.0784,
		HitStopEOD: false, HitTPEOD: false,
		FactorSnapshot: map[string]float64{
			"L1": 1.2, "L2": -0.3, "S1": 0.5, "S2": 0.1, "S3": 0, "S4": 2.4,
			"F1": 0.9, "F2": -1.1, "R1": 0.02, "alpha_score": 0.87,
		},
	}}
	if err := st.SavePositions(ctx, id, snaps); err != nil {
		t.Fatalf("SavePositions: %v", err)
	}
	gotSnaps, err := st.ReadPositions(ctx, id)
	if err != nil {
		t.Fatalf("ReadPositions: %v", err)
	}
	if len(gotSnaps) != 1 {
		t.Fatalf("ReadPositions returned %d snapshots, want 1", len(gotSnaps))
	}
	if gotSnaps[0].MarketValue != 10200 || gotSnaps[0].HitStopEOD {
		t.Errorf("snapshot = %+v", gotSnaps[0])
	}
	if gotSnaps[0].FactorSnapshot["S4"] != 2.4 || gotSnaps[0].FactorSnapshot["alpha_score"] != 0.87 {
		t.Errorf("snapshot factor snapshot = %v", gotSnaps[0].FactorSnapshot)
	}
}
