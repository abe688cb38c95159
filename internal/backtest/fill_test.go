package backtest

import (
	"math"
	"testing"
	"time"

	"tradesys/internal/domain"
)

func mbar(hh, mm int, lo, hi, cl float64, vol int64) domain.MinuteBar {
	d := time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)
	return domain.MinuteBar{
		Symbol:    "sh.600000",
		Date:      d,
		Timestamp: time.Date(2024, 6, 4, hh, mm, 0, 0, time.UTC),
		Open:      cl,
		High:      hi,
		Low:       lo,
		Close:     cl,
		Volume:    vol,
	}
}

func TestRangeFillFirstTouch(t *testing.T) {
	m := &RangeFillModel{SlippageBps: 0}
	bars := []domain.MinuteBar{
		mbar(9, 31, 9, 11, 10.8, 1000),
		mbar(9, 32, 12, 14, 13, 1000),
	}

	// Buy interval [10, 10.5]: the first bar intersects; the fill price is
	// the bar close clipped into the intersection.
	fill, ok := m.TryFill(bars, domain.OrderSideBuy, 10, 10.5)
	if !ok {
		t.Fatal("expected a fill from the first bar")
	}
	if fill.Price != 10.5 {
		t.Errorf("fill price = %v, want 10.5 (close 10.8 clipped into [10, 10.5])", fill.Price)
	}
	if !fill.Time.Equal(bars[0].Timestamp) {
		t.Errorf("fill time = %v, want first bar's timestamp", fill.Time)
	}

	// Interval [20, 21] touches nothing.
	if _, ok := m.TryFill(bars, domain.OrderSideBuy, 20, 21); ok {
		t.Error("expected NotTouched for interval [20, 21]")
	}
}

func TestRangeFillChronological(t *testing.T) {
	m := &RangeFillModel{SlippageBps: 0}
	// Second bar also intersects, but the first touch wins.
	bars := []domain.MinuteBar{
		mbar(9, 31, 10.0, 10.2, 10.1, 500),
		mbar(9, 32, 10.0, 10.2, 10.0, 500),
	}
	fill, ok := m.TryFill(bars, domain.OrderSideSell, 10.0, 10.2)
	if !ok {
		t.Fatal("expected a fill")
	}
	if !fill.Time.Equal(bars[0].Timestamp) {
		t.Errorf("fill time = %v, want the chronologically first bar", fill.Time)
	}
}

func TestRangeFillSlippageAdverse(t *testing.T) {
	m := &RangeFillModel{SlippageBps: 2}
	bars := []domain.MinuteBar{mbar(9, 31, 9.9, 10.1, 10.0, 1000)}

	buy, ok := m.TryFill(bars, domain.OrderSideBuy, 9.9, 10.1)
	if !ok {
		t.Fatal("expected buy fill")
	}
	if math.Abs(buy.Price-10.0*1.0002) > 1e-9 {
		t.Errorf("buy fill = %v, want pushed up to %v", buy.Price, 10.0*1.0002)
	}

	sell, ok := m.TryFill(bars, domain.OrderSideSell, 9.9, 10.1)
	if !ok {
		t.Fatal("expected sell fill")
	}
	if math.Abs(sell.Price-10.0*0.9998) > 1e-9 {
		t.Errorf("sell fill = %v, want pushed down to %v", sell.Price, 10.0*0.9998)
	}
}

func TestVWAPFillUsesRunningVWAP(t *testing.T) {
	m := &VWAPFillModel{SlippageBps: 0}
	// VWAP of the first two bars: (10×100 + 11×300) / 400 = 10.75.
	bars := []domain.MinuteBar{
		mbar(9, 31, 9.9, 10.1, 10.0, 100),
		mbar(9, 32, 10.5, 11.2, 11.0, 300),
	}

	fill, ok := m.TryFill(bars, domain.OrderSideBuy, 10.6, 11.2)
	if !ok {
		t.Fatal("expected a fill from the second bar")
	}
	if math.Abs(fill.Price-10.75) > 1e-9 {
		t.Errorf("fill price = %v, want running VWAP 10.75", fill.Price)
	}
	if !fill.Time.Equal(bars[1].Timestamp) {
		t.Errorf("fill time = %v, want second bar's timestamp", fill.Time)
	}
}

func TestVWAPFillClipsIntoIntersection(t *testing.T) {
	m := &VWAPFillModel{SlippageBps: 0}
	// Running VWAP 10.0 is below the order interval; the fill must be
	// clipped up into the touching bar's intersection.
	bars := []domain.MinuteBar{
		mbar(9, 31, 9.9, 10.1, 10.0, 1000),
		mbar(9, 32, 10.05, 10.3, 10.2, 1),
	}
	fill, ok := m.TryFill(bars, domain.OrderSideBuy, 10.2, 10.4)
	if !ok {
		t.Fatal("expected a fill")
	}
	if fill.Price < 10.2 || fill.Price > 10.3 {
		t.Errorf("fill price = %v, want within intersection [10.2, 10.3]", fill.Price)
	}
}

func TestFillNoBars(t *testing.T) {
	models := []FillModel{
		&RangeFillModel{SlippageBps: 2},
		&VWAPFillModel{SlippageBps: 2},
	}
	for _, m := range models {
		if _, ok := m.TryFill(nil, domain.OrderSideBuy, 9, 11); ok {
			t.Errorf("%T returned a fill with no bars", m)
		}
	}
}
