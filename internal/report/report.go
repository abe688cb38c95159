// Package report computes summary performance metrics from a completed
// backtest's NAV series and trade log.
package report

import (
	"math"

	"tradesys/internal/domain"
)

// tradingDaysPerYear is the approximate A-share trading-day count used for
// annualization.
const tradingDaysPerYear = 242

// Summary holds the performance metrics of one backtest run.
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

// Summarize computes a Summary from the NAV series and trade log. An empty
// NAV series yields a zero Summary.
func Summarize(nav []domain.NAVPoint, trades []domain.TradeRecord) Summary {
	var s Summary
	if len(nav) == 0 {
		return s
	}

	s.InitialNAV = nav[0].NAV
	s.FinalNAV = nav[len(nav)-1].NAV
	if s.InitialNAV > 0 {
		s.TotalReturn = s.FinalNAV/s.InitialNAV - 1
	}
	if len(nav) > 1 && s.InitialNAV > 0 && s.FinalNAV > 0 {
		years := float64(len(nav)-1) / tradingDaysPerYear
		if years > 0 {
			s.AnnualReturn = math.Pow(s.FinalNAV/s.InitialNAV, 1/years) - 1
		}
	}

	s.MaxDrawdown = maxDrawdown(nav)
	s.SharpeRatio = sharpe(nav)

	s.TotalTrades = len(trades)
	if len(trades) > 0 {
		var wins int
		var grossProfit, grossLoss, holdDays float64
		for _, t := range trades {
			if t.PnL > 0 {
				wins++
				grossProfit += t.PnL
			} else {
				grossLoss += -t.PnL
			}
			holdDays += float64(t.HoldDays)
		}
		s.WinRate = float64(wins) / float64(len(trades))
		s.AvgHoldDays = holdDays / float64(len(trades))
		// JSON cannot carry Inf, so an all-winning run reports the gross
		// profit itself rather than profit/0.
		if grossLoss > 0 {
			s.ProfitFactor = grossProfit / grossLoss
		} else {
			s.ProfitFactor = grossProfit
		}
	}

	return s
}

// maxDrawdown returns the largest peak-to-trough decline of the NAV series
// as a positive fraction.
func maxDrawdown(nav []domain.NAVPoint) float64 {
	peak := math.Inf(-1)
	var dd float64
	for _, p := range nav {
		if p.NAV > peak {
			peak = p.NAV
		}
		if peak > 0 {
			if d := (peak - p.NAV) / peak; d > dd {
				dd = d
			}
		}
	}
	return dd
}

// sharpe computes the annualized Sharpe ratio of daily NAV returns with a
// zero risk-free rate.
func sharpe(nav []domain.NAVPoint) float64 {
	if len(nav) < 3 {
		return 0
	}

	rets := make([]float64, 0, len(nav)-1)
	for i := 1; i < len(nav); i++ {
		if nav[i-1].NAV > 0 {
			rets = append(rets, nav[i].NAV/nav[i-1].NAV-1)
		}
	}
	if len(rets) < 2 {
		return 0
	}

	var mean float64
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))

	var variance float64
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rets) - 1)

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}
