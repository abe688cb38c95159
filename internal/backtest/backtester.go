package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"tradesys/internal/domain"
	"tradesys/internal/util"
)

// Config defines the simulation window, sizing, and risk parameters of a
// run. Cost and fill behaviour are injected separately.
type Config struct {
	Start time.Time
	End   time.Time

	Capital            float64
	MaxPositions       int
	MaxNewPositionsDay int
	MaxHoldDays        int

	StopLossPct   float64 // relative to entry price, e.g. -0.05
	TakeProfitPct float64 // relative to entry price, e.g. 0.10

	LotSize       int64
	MinOrderValue float64
	EntryBandPct  float64 // buy interval half-width around the exec-day open
}

// Result holds the append-only outputs of a completed run.
type Result struct {
	NAV       []domain.NAVPoint
	Trades    []domain.TradeRecord
	Orders    []domain.OrderRecord
	Positions []domain.PositionSnapshot
}

// Backtester owns the mutable simulation state (cash, reserved cash, open
// positions) and drives the daily loop: generate exit orders → match sells →
// generate entry orders from the prior day's selection → match buys → record
// NAV and position snapshot. The loop is single-threaded and deterministic:
// each day's state strictly depends on the previous day's outcome.
type Backtester struct {
	cfg    Config
	data   *MarketData
	cal    *util.TradingCalendar
	cost   CostModel
	limits PriceLimitModel
	fill   FillModel
	log    *slog.Logger

	cash      float64
	reserved  float64 // committed to pending buys, discarded at day end
	positions map[string]*domain.Position
	orderSeq  int

	nav       []domain.NAVPoint
	trades    []domain.TradeRecord
	orders    []domain.OrderRecord
	snapshots []domain.PositionSnapshot
}

// New creates a Backtester over the given immutable market data and trading
// calendar.
func New(cfg Config, data *MarketData, cal *util.TradingCalendar, cost CostModel, fill FillModel, logger *slog.Logger) *Backtester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backtester{
		cfg:       cfg,
		data:      data,
		cal:       cal,
		cost:      cost,
		fill:      fill,
		log:       logger,
		cash:      cfg.Capital,
		positions: make(map[string]*domain.Position),
	}
}

// NewFillModel returns the fill model for a config name: "vwap" or the
// default "range".
func NewFillModel(name string, slippageBps float64) FillModel {
	if name == "vwap" {
		return &VWAPFillModel{SlippageBps: slippageBps}
	}
	return &RangeFillModel{SlippageBps: slippageBps}
}

// Run executes the simulation over every trading day in the configured
// window. Whole-run preconditions are checked before the first day; after
// that the run always completes with best-effort logs, absorbing per-symbol
// failures into the order log.
func (b *Backtester) Run(ctx context.Context) (*Result, error) {
	days := b.cal.Range(b.cfg.Start, b.cfg.End)
	if len(days) == 0 {
		return nil, ErrMissingCalendar
	}
	if !b.data.HasFactors() {
		return nil, ErrMissingFactorPanel
	}

	b.log.Info("backtest starting",
		"start", days[0].Format(domain.DateLayout),
		"end", days[len(days)-1].Format(domain.DateLayout),
		"days", len(days),
		"capital", b.cfg.Capital)

	for _, d := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.runDay(d)
	}

	res := &Result{
		NAV:       b.nav,
		Trades:    b.trades,
		Orders:    b.orders,
		Positions: b.snapshots,
	}
	final := b.cfg.Capital
	if len(res.NAV) > 0 {
		final = res.NAV[len(res.NAV)-1].NAV
	}
	b.log.Info("backtest finished",
		"days", len(res.NAV),
		"trades", len(res.Trades),
		"orders", len(res.Orders),
		"final_nav", final)
	return res, nil
}

// runDay advances the state machine by one trading day.
func (b *Backtester) runDay(d time.Time) {
	// Sells release cash before buys consume it.
	for _, o := range b.generateExitOrders(d) {
		b.matchSell(d, o)
	}

	entries := b.generateEntryOrders(d)
	for _, e := range entries {
		b.matchBuy(d, e.order, e.row)
	}

	// Reservations are single-day: released unconditionally, never carried.
	b.reserved = 0

	b.recordSnapshot(d)
}

// ---------------------------------------------------------------------------
// Exit side
// ---------------------------------------------------------------------------

// generateExitOrders increments hold counters and emits at most one sell
// order per open position, under the priority stop_loss > take_profit >
// max_hold.
func (b *Backtester) generateExitOrders(d time.Time) []domain.Order {
	var orders []domain.Order
	for _, sym := range b.sortedPositionSymbols() {
		pos := b.positions[sym]
		pos.HoldDays++

		bars := b.data.MinuteBars(sym, d)
		trig, ok := decideExit(pos, bars, b.cfg.MaxHoldDays)
		if !ok {
			continue
		}

		bar, ok := b.data.DailyBar(sym, d)
		if !ok {
			// No daily data: the symbol is skipped for the day. The position
			// stays open and is re-evaluated tomorrow.
			b.recordReject(b.newOrder(sym, domain.OrderSideSell, trig.reason, d, pos.Shares, 0, 0, pos.SignalDate), domain.RejectNoDailyData)
			continue
		}

		down, up := b.limits.LimitPrices(sym, bar.PrevClose, bar.IsST)
		lo, hi := exitInterval(trig.reason, pos, down, up)
		orders = append(orders, b.newOrder(sym, domain.OrderSideSell, trig.reason, d, pos.Shares, lo, hi, pos.SignalDate))
	}
	return orders
}

// exitInterval builds the desired sell price interval for an exit reason,
// constrained to the legal band [down, up].
func exitInterval(reason domain.OrderReason, pos *domain.Position, down, up float64) (float64, float64) {
	switch reason {
	case domain.ReasonStopLoss:
		if pos.StopPrice <= down {
			// Gapped through the stop: exit at any legal price.
			return down, up
		}
		return down, pos.StopPrice
	case domain.ReasonTakeProfit:
		return pos.TakeProfitPrice, up
	default: // max_hold, manual
		return down, up
	}
}

// matchSell routes a sell order through the price-limit and fill models. An
// unfilled sell leaves the position open; it is freshly re-evaluated the
// next day. That is the expected path for illiquid or limit-down stocks.
func (b *Backtester) matchSell(d time.Time, o domain.Order) {
	pos, ok := b.positions[o.Symbol]
	if !ok {
		return
	}
	bar, ok := b.data.DailyBar(o.Symbol, d)
	if !ok {
		b.recordReject(o, domain.RejectNoDailyData)
		return
	}

	down, _ := b.limits.LimitPrices(o.Symbol, bar.PrevClose, bar.IsST)
	if b.limits.IsOnePriceLimit(bar.High, bar.Low, down) {
		// Sealed at limit-down: everyone wants out, no one is buying.
		b.recordReject(o, domain.RejectOnePriceLimitNoSell)
		return
	}

	fill, ok := b.fill.TryFill(b.data.MinuteBars(o.Symbol, d), o.Side, o.PriceLow, o.PriceHigh)
	if !ok {
		b.recordReject(o, domain.RejectRangeNotTouched)
		return
	}

	b.closePosition(d, pos, fill.Price, o.Reason, fill.Time)
	b.recordFill(o, fill)
}

// closePosition settles a filled sell: credits cash net of costs, appends
// the trade record, and removes the position. This is the single removal
// site of the position map.
func (b *Backtester) closePosition(d time.Time, pos *domain.Position, exitPrice float64, reason domain.OrderReason, exitTime time.Time) {
	tradeValue := exitPrice * float64(pos.Shares)
	cost := b.cost.SellCost(tradeValue)
	b.cash += tradeValue - cost

	entryValue := pos.EntryPrice * float64(pos.Shares)
	pnl := (exitPrice-pos.EntryPrice)*float64(pos.Shares) - pos.EntryCost - cost
	ret := 0.0
	if entryValue > 0 {
		ret = pnl / entryValue
	}

	b.trades = append(b.trades, domain.TradeRecord{
		Symbol:          pos.Symbol,
		SignalDate:      pos.SignalDate,
		EntryDate:       pos.EntryDate,
		ExitDate:        d,
		EntryPrice:      pos.EntryPrice,
		ExitPrice:       exitPrice,
		Shares:          pos.Shares,
		EntryValue:      entryValue,
		ExitValue:       tradeValue,
		EntryCost:       pos.EntryCost,
		ExitCost:        cost,
		PnL:             pnl,
		Return:          ret,
		HoldDays:        pos.HoldDays,
		ExitReason:      reason,
		ExitTime:        exitTime,
		StopPrice:       pos.StopPrice,
		TakeProfitPrice: pos.TakeProfitPrice,
		FactorSnapshot:  pos.FactorSnapshot,
	})
	delete(b.positions, pos.Symbol)

	b.log.Debug("position closed",
		"symbol", pos.Symbol,
		"reason", string(reason),
		"exit_price", exitPrice,
		"pnl", pnl)
}

// ---------------------------------------------------------------------------
// Entry side
// ---------------------------------------------------------------------------

// entryOrder pairs a buy order with the factor row that selected it, so the
// factor values can be snapshotted onto the position at fill time.
type entryOrder struct {
	order domain.Order
	row   domain.FactorRow
}

// generateEntryOrders builds buy orders from the previous trading day's
// ranked candidate panel (one-day execution lag). Each order reserves its
// worst-case cost so that candidates evaluated in the same pass cannot
// double-spend the same cash.
func (b *Backtester) generateEntryOrders(d time.Time) []entryOrder {
	prev, ok := b.cal.Prev(d)
	if !ok || prev.Before(util.Midnight(b.cfg.Start)) {
		return nil
	}
	capacity := b.cfg.MaxPositions - len(b.positions)
	if capacity <= 0 {
		return nil
	}

	limit := b.cfg.MaxNewPositionsDay
	if capacity < limit {
		limit = capacity
	}

	var out []entryOrder
	created := 0
	seen := make(map[string]bool)

	for _, row := range b.data.CrossSection(prev) {
		if created >= limit {
			break
		}
		sym := row.Symbol
		if seen[sym] {
			continue
		}
		seen[sym] = true
		if _, held := b.positions[sym]; held {
			continue
		}

		// Signal-day filters: suspended and ST issues never enter the
		// candidate set.
		sigBar, ok := b.data.DailyBar(sym, prev)
		if !ok || sigBar.TradeStatus != domain.TradeStatusTrading || sigBar.IsST {
			continue
		}

		execBar, ok := b.data.DailyBar(sym, d)
		if !ok {
			b.recordReject(b.newOrder(sym, domain.OrderSideBuy, domain.ReasonEntry, d, 0, 0, 0, prev), domain.RejectNoDailyData)
			continue
		}

		lo := execBar.Open * (1 - b.cfg.EntryBandPct)
		hi := execBar.Open * (1 + b.cfg.EntryBandPct)

		freeCash := b.cash - b.reserved
		slots := capacity - created
		budget := freeCash / float64(slots)
		if budget < b.cfg.MinOrderValue {
			continue
		}

		qty := b.lotShares(budget, hi)
		// Shrink until the worst-case cost fits the budget.
		for qty > 0 && hi*float64(qty)+b.cost.BuyCost(hi*float64(qty)) > budget {
			qty -= b.cfg.LotSize
		}
		if qty <= 0 {
			continue
		}

		estValue := hi * float64(qty)
		b.reserved += estValue + b.cost.BuyCost(estValue)

		out = append(out, entryOrder{
			order: b.newOrder(sym, domain.OrderSideBuy, domain.ReasonEntry, d, qty, lo, hi, prev),
			row:   row,
		})
		created++
	}
	return out
}

// lotShares returns the largest lot-multiple quantity affordable at price
// within budget.
func (b *Backtester) lotShares(budget, price float64) int64 {
	if price <= 0 {
		return 0
	}
	raw := int64(budget / price)
	return (raw / b.cfg.LotSize) * b.cfg.LotSize
}

// matchBuy routes a buy order through the price-limit and fill models and
// opens the position on success. This is the single insert site of the
// position map; generation never emits a buy for a held symbol.
func (b *Backtester) matchBuy(d time.Time, o domain.Order, row domain.FactorRow) {
	bar, ok := b.data.DailyBar(o.Symbol, d)
	if !ok {
		b.recordReject(o, domain.RejectNoDailyData)
		return
	}

	down, up := b.limits.LimitPrices(o.Symbol, bar.PrevClose, bar.IsST)
	if b.limits.IsOnePriceLimit(bar.High, bar.Low, up) {
		// Sealed at limit-up: everyone wants in, no one is selling. Filling
		// here would manufacture an execution that never existed.
		b.recordReject(o, domain.RejectOnePriceLimitNoBuy)
		return
	}

	lo, hi, ok := intersect(o.PriceLow, o.PriceHigh, down, up)
	if !ok {
		b.recordReject(o, domain.RejectRangeNotTouched)
		return
	}

	fill, ok := b.fill.TryFill(b.data.MinuteBars(o.Symbol, d), o.Side, lo, hi)
	if !ok {
		b.recordReject(o, domain.RejectRangeNotTouched)
		return
	}

	tradeValue := fill.Price * float64(o.Quantity)
	cost := b.cost.BuyCost(tradeValue)
	total := tradeValue + cost
	// The actual fill can differ from the reservation-time estimate, so the
	// full cost is re-checked against cash here.
	if total > b.cash {
		b.recordReject(o, domain.RejectCashInsufficient)
		return
	}
	b.cash -= total

	snapshot := make(map[string]float64, len(row.Factors)+1)
	for k, v := range row.Factors {
		snapshot[k] = v
	}
	snapshot["alpha_score"] = row.AlphaScore

	b.positions[o.Symbol] = &domain.Position{
		Symbol:          o.Symbol,
		SignalDate:      o.SignalDate,
		EntryDate:       d,
		EntryPrice:      fill.Price,
		Shares:          o.Quantity,
		EntryCost:       cost,
		HoldDays:        0,
		StopPrice:       fill.Price * (1 + b.cfg.StopLossPct),
		TakeProfitPrice: fill.Price * (1 + b.cfg.TakeProfitPct),
		LastClose:       fill.Price,
		FactorSnapshot:  snapshot,
	}
	b.recordFill(o, fill)

	b.log.Debug("position opened",
		"symbol", o.Symbol,
		"price", fill.Price,
		"shares", o.Quantity,
		"cash", b.cash)
}

// ---------------------------------------------------------------------------
// Bookkeeping
// ---------------------------------------------------------------------------

// recordSnapshot marks all open positions to the day's close and appends
// one NAV point plus one row per position to the daily logs. A position
// with no daily data keeps its last mark so the NAV identity
// nav == cash + Σ shares×mark still holds.
func (b *Backtester) recordSnapshot(d time.Time) {
	holdings := 0.0
	syms := b.sortedPositionSymbols()

	for _, sym := range syms {
		pos := b.positions[sym]
		if bar, ok := b.data.DailyBar(sym, d); ok {
			pos.LastClose = bar.Close
		}
		holdings += pos.LastClose * float64(pos.Shares)
	}

	nav := b.cash + holdings
	b.nav = append(b.nav, domain.NAVPoint{
		Date:          d,
		NAV:           nav,
		Cash:          b.cash,
		HoldingsValue: holdings,
		NumPositions:  len(b.positions),
	})

	for _, sym := range syms {
		pos := b.positions[sym]
		bar, ok := b.data.DailyBar(sym, d)
		if !ok {
			continue
		}

		mv := bar.Close * float64(pos.Shares)
		entryValue := pos.EntryPrice * float64(pos.Shares)
		pnl := (bar.Close-pos.EntryPrice)*float64(pos.Shares) - pos.EntryCost
		ret := 0.0
		if entryValue > 0 {
			ret = pnl / entryValue
		}
		weight := 0.0
		if nav > 0 {
			weight = mv / nav
		}

		b.snapshots = append(b.snapshots, domain.PositionSnapshot{
			Date:            d,
			Symbol:          sym,
			SignalDate:      pos.SignalDate,
			EntryDate:       pos.EntryDate,
			EntryPrice:      pos.EntryPrice,
			Shares:          pos.Shares,
			HoldDays:        pos.HoldDays,
			Open:            bar.Open,
			High:            bar.High,
			Low:             bar.Low,
			Close:           bar.Close,
			MarketValue:     mv,
			PnL:             pnl,
			Return:          ret,
			Weight:          weight,
			StopPrice:       pos.StopPrice,
			TakeProfitPrice: pos.TakeProfitPrice,
			StopDistance:    (bar.Close - pos.StopPrice) / bar.Close,
			TPDistance:      (pos.TakeProfitPrice - bar.Close) / bar.Close,
			HitStopEOD:      bar.Close <= pos.StopPrice,
			HitTPEOD:        bar.Close >= pos.TakeProfitPrice,
			FactorSnapshot:  pos.FactorSnapshot,
		})
	}
}

// sortedPositionSymbols returns the open-position symbols in lexicographic
// order. Map iteration order must never leak into the simulation.
func (b *Backtester) sortedPositionSymbols() []string {
	syms := make([]string, 0, len(b.positions))
	for sym := range b.positions {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}

func (b *Backtester) newOrder(symbol string, side domain.OrderSide, reason domain.OrderReason, d time.Time, qty int64, lo, hi float64, signalDate time.Time) domain.Order {
	b.orderSeq++
	return domain.Order{
		ID:         fmt.Sprintf("O%06d", b.orderSeq),
		Symbol:     symbol,
		Side:       side,
		Reason:     reason,
		SubmitDate: d,
		ValidDate:  d,
		Quantity:   qty,
		PriceLow:   lo,
		PriceHigh:  hi,
		SignalDate: signalDate,
	}
}

func (b *Backtester) recordFill(o domain.Order, fill FillResult) {
	b.orders = append(b.orders, domain.OrderRecord{
		Order:     o,
		Status:    domain.OrderStatusFilled,
		FillPrice: fill.Price,
		FillTime:  fill.Time,
	})
}

func (b *Backtester) recordReject(o domain.Order, reason domain.RejectReason) {
	b.orders = append(b.orders, domain.OrderRecord{
		Order:  o,
		Status: domain.OrderStatusRejected,
		Reject: reason,
	})
}
