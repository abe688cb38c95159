package backtest

import (
	"time"

	"tradesys/internal/domain"
)

// FillResult describes a simulated execution: the price after slippage and
// the timestamp of the bar that produced it.
type FillResult struct {
	Price float64
	Time  time.Time
}

// FillModel decides whether and at what price an order fills against a
// day's intraday bars. Implementations must scan bars in chronological
// order and take the first touch; no look-ahead across bars is permitted.
type FillModel interface {
	// TryFill returns the fill for the first bar whose [low, high] range
	// intersects the closed interval [priceLow, priceHigh], or ok=false
	// when no bar touches the interval.
	TryFill(bars []domain.MinuteBar, side domain.OrderSide, priceLow, priceHigh float64) (FillResult, bool)
}

// Compile-time interface checks.
var _ FillModel = (*RangeFillModel)(nil)
var _ FillModel = (*VWAPFillModel)(nil)

// RangeFillModel fills at the touching bar's close, clipped into the
// intersection of the bar range and the order interval, then adjusted by a
// fixed adverse slippage.
type RangeFillModel struct {
	SlippageBps float64
}

// TryFill scans bars chronologically for the first range intersection.
func (m *RangeFillModel) TryFill(bars []domain.MinuteBar, side domain.OrderSide, priceLow, priceHigh float64) (FillResult, bool) {
	for i := range bars {
		bar := &bars[i]
		lo, hi, ok := intersect(bar.Low, bar.High, priceLow, priceHigh)
		if !ok {
			continue
		}
		px := clip(bar.Close, lo, hi)
		return FillResult{
			Price: applySlippage(px, side, m.SlippageBps),
			Time:  bar.Timestamp,
		}, true
	}
	return FillResult{}, false
}

// VWAPFillModel fills at the volume-weighted average price of the bars up
// to and including the touching bar, approximated from bar closes and
// volumes, clipped into the touching bar's intersection with the order
// interval.
type VWAPFillModel struct {
	SlippageBps float64
}

// TryFill scans bars chronologically for the first range intersection.
func (m *VWAPFillModel) TryFill(bars []domain.MinuteBar, side domain.OrderSide, priceLow, priceHigh float64) (FillResult, bool) {
	var pv, vv float64
	for i := range bars {
		bar := &bars[i]
		pv += bar.Close * float64(bar.Volume)
		vv += float64(bar.Volume)

		lo, hi, ok := intersect(bar.Low, bar.High, priceLow, priceHigh)
		if !ok {
			continue
		}

		px := bar.Close
		if vv > 0 {
			px = pv / vv
		}
		px = clip(px, lo, hi)
		return FillResult{
			Price: applySlippage(px, side, m.SlippageBps),
			Time:  bar.Timestamp,
		}, true
	}
	return FillResult{}, false
}

// intersect returns the overlap of two closed intervals.
func intersect(aLo, aHi, bLo, bHi float64) (lo, hi float64, ok bool) {
	lo = aLo
	if bLo > lo {
		lo = bLo
	}
	hi = aHi
	if bHi < hi {
		hi = bHi
	}
	return lo, hi, lo <= hi
}

func clip(p, lo, hi float64) float64 {
	if p < lo {
		return lo
	}
	if p > hi {
		return hi
	}
	return p
}

// applySlippage shifts a price against the trader: buys up, sells down.
func applySlippage(price float64, side domain.OrderSide, bps float64) float64 {
	slip := bps / 10000.0
	if side == domain.OrderSideBuy {
		return price * (1 + slip)
	}
	return price * (1 - slip)
}
