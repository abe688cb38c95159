// Package backtest implements the order-driven backtest simulation engine:
// the transaction cost model, the daily price-limit model, the intraday
// range-fill model, and the day-by-day order-lifecycle state machine that
// ties them together into a deterministic simulation.
package backtest

// CostModel computes transaction costs as a pure function of trade value.
// Commission is charged on both sides with a minimum ticket; the stamp tax
// is charged on sells only.
type CostModel struct {
	CommissionRate float64
	StampTaxRate   float64
	MinCommission  float64
}

// DefaultCostModel returns the standard A-share retail cost terms:
// commission 0.02% (min ¥5) and stamp tax 0.05% on sells.
func DefaultCostModel() CostModel {
	return CostModel{
		CommissionRate: 0.0002,
		StampTaxRate:   0.0005,
		MinCommission:  5.0,
	}
}

// BuyCost returns the total cost of buying tradeValue worth of stock.
func (c CostModel) BuyCost(tradeValue float64) float64 {
	return c.commission(tradeValue)
}

// SellCost returns the total cost of selling tradeValue worth of stock,
// including the one-sided stamp tax.
func (c CostModel) SellCost(tradeValue float64) float64 {
	return c.commission(tradeValue) + tradeValue*c.StampTaxRate
}

func (c CostModel) commission(tradeValue float64) float64 {
	comm := tradeValue * c.CommissionRate
	if comm < c.MinCommission {
		comm = c.MinCommission
	}
	return comm
}
