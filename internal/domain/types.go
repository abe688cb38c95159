// Package domain defines the typed records that flow through the backtest:
// market data rows, factor rows, orders, positions, and the append-only
// result logs. All downstream code operates on these typed fields; there is
// no string-keyed row access anywhere past the load boundary.
package domain

import "time"

// DateLayout is the canonical date format used for map keys and on-disk
// file names.
const DateLayout = "2006-01-02"

// Board classifies a symbol by its listing board, which selects the daily
// price-limit rate.
type Board string

const (
	BoardMain    Board = "main"    // Shanghai/Shenzhen main board, ±10%
	BoardChiNext Board = "chinext" // 300xxx, ±20%
	BoardSTAR    Board = "star"    // 688xxx, ±20%
)

// TradeStatusTrading is the trade_status value for a normally trading
// session; anything else means the symbol was suspended that day.
const TradeStatusTrading = 1

// PriceBar is one daily OHLCV row for a symbol. Immutable once loaded; one
// row per (symbol, date).
type PriceBar struct {
	Symbol      string
	Date        time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	PrevClose   float64
	Volume      int64
	Turnover    float64 // trading amount (CNY)
	TradeStatus int     // TradeStatusTrading or suspended
	IsST        bool    // special-treatment flag, narrower price band
}

// MinuteBar is one intraday bar, ordered by Timestamp within a
// (symbol, date) group.
type MinuteBar struct {
	Symbol    string
	Date      time.Time
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// FactorRow is one row of the pre-scored candidate panel: named factor
// values plus the scalar alpha score used for ranking. Produced by an
// external collaborator; read-only here.
type FactorRow struct {
	Date       time.Time
	Symbol     string
	Factors    map[string]float64 // named factor values (L1, S1, ...)
	AlphaScore float64
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderReason records why an order was generated.
type OrderReason string

const (
	ReasonEntry      OrderReason = "entry"
	ReasonStopLoss   OrderReason = "stop_loss"
	ReasonTakeProfit OrderReason = "take_profit"
	ReasonMaxHold    OrderReason = "max_hold"
	ReasonManual     OrderReason = "manual"
)

// OrderStatus is the terminal state of an order. Orders are valid for a
// single day: anything not filled on its valid date is rejected, never
// carried forward.
type OrderStatus string

const (
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusRejected OrderStatus = "rejected"
)

// RejectReason distinguishes the ways an order can fail to fill. These are
// order-log data, not errors; none of them interrupts the simulation.
type RejectReason string

const (
	RejectNone                RejectReason = ""
	RejectNoDailyData         RejectReason = "no_daily_data"
	RejectOnePriceLimitNoBuy  RejectReason = "one_price_limit_no_buy"
	RejectOnePriceLimitNoSell RejectReason = "one_price_limit_no_sell"
	RejectRangeNotTouched     RejectReason = "range_not_touched"
	RejectCashInsufficient    RejectReason = "cash_insufficient_at_fill"
)

// Order is an immutable intent record. PriceLow/PriceHigh is a closed
// interval; the order may only fill at a price some intraday bar actually
// touched inside it.
type Order struct {
	ID         string
	Symbol     string
	Side       OrderSide
	Reason     OrderReason
	SubmitDate time.Time
	ValidDate  time.Time // single-day validity
	Quantity   int64
	PriceLow   float64
	PriceHigh  float64
	SignalDate time.Time // zero for non-entry orders
}

// OrderRecord is one order-log row: the order plus its outcome.
type OrderRecord struct {
	Order
	Status    OrderStatus
	Reject    RejectReason
	FillPrice float64
	FillTime  time.Time
}

// Position is one open holding. Exactly one Position may exist per symbol
// at any time; the backtester enforces this at the single insert site.
type Position struct {
	Symbol          string
	SignalDate      time.Time
	EntryDate       time.Time
	EntryPrice      float64
	Shares          int64
	EntryCost       float64 // fees paid at entry
	HoldDays        int     // trading days held, incremented once per day
	StopPrice       float64
	TakeProfitPrice float64
	LastClose       float64            // most recent mark price
	FactorSnapshot  map[string]float64 // factor values at entry, for attribution
}

// TradeRecord is the closed-position summary written once per exit.
type TradeRecord struct {
	Symbol          string
	SignalDate      time.Time
	EntryDate       time.Time
	ExitDate        time.Time
	EntryPrice      float64
	ExitPrice       float64
	Shares          int64
	EntryValue      float64
	ExitValue       float64
	EntryCost       float64
	ExitCost        float64
	PnL             float64
	Return          float64
	HoldDays        int
	ExitReason      OrderReason
	ExitTime        time.Time // timestamp of the bar that filled the exit
	StopPrice       float64
	TakeProfitPrice float64
	FactorSnapshot  map[string]float64
}

// NAVPoint is one day of the equity curve: cash plus mark-to-market value
// of all open positions.
type NAVPoint struct {
	Date          time.Time
	NAV           float64
	Cash          float64
	HoldingsValue float64
	NumPositions  int
}

// PositionSnapshot is one row of the daily position log: an open position
// marked to the day's close, with distances to its risk lines.
type PositionSnapshot struct {
	Date            time.Time
	Symbol          string
	SignalDate      time.Time
	EntryDate       time.Time
	EntryPrice      float64
	Shares          int64
	HoldDays        int
	Open            float64
	High            float64
	Low             float64
	Close           float64
	MarketValue     float64
	PnL             float64
	Return          float64
	Weight          float64
	StopPrice       float64
	TakeProfitPrice float64
	StopDistance    float64 // (close - stop) / close
	TPDistance      float64 // (take_profit - close) / close
	HitStopEOD      bool
	HitTPEOD        bool
	FactorSnapshot  map[string]float64 // factor values at entry, for attribution
}
