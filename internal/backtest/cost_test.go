package backtest

import (
	"math"
	"testing"
)

func TestCostModelFloor(t *testing.T) {
	c := DefaultCostModel()

	// Small trade: the ¥5 minimum ticket dominates.
	if got := c.BuyCost(1000); got != 5.0 {
		t.Errorf("BuyCost(1000) = %v, want 5.0 (minimum ticket)", got)
	}

	// Large trade: proportional commission dominates.
	if got := c.BuyCost(100000); math.Abs(got-20.0) > 1e-9 {
		t.Errorf("BuyCost(100000) = %v, want 20.0", got)
	}
}

func TestCostModelSellAddsTax(t *testing.T) {
	c := DefaultCostModel()

	// sell = commission + stamp tax.
	want := 20.0 + 100000*0.0005
	if got := c.SellCost(100000); math.Abs(got-want) > 1e-9 {
		t.Errorf("SellCost(100000) = %v, want %v", got, want)
	}

	// Sell side always carries at least as much cost as buy side for any
	// positive value when the tax rate is positive.
	for _, v := range []float64{1, 100, 2500, 10000, 50000, 1e6} {
		if c.SellCost(v) <= c.BuyCost(v) {
			t.Errorf("SellCost(%v) = %v not greater than BuyCost(%v) = %v",
				v, c.SellCost(v), v, c.BuyCost(v))
		}
	}
}

func TestCostModelDeterministic(t *testing.T) {
	c := CostModel{CommissionRate: 0.0003, StampTaxRate: 0.001, MinCommission: 5}
	a := c.SellCost(12345.67)
	b := c.SellCost(12345.67)
	if a != b {
		t.Errorf("SellCost not deterministic: %v vs %v", a, b)
	}
}
