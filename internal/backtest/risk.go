package backtest

import (
	"time"

	"tradesys/internal/domain"
)

// exitTrigger is the outcome of scanning one position against one day of
// market data: the single exit reason that fired, if any.
type exitTrigger struct {
	reason domain.OrderReason
	time   time.Time // zero for max_hold (no intraday trigger point)
}

// scanIntradayExit walks the day's minute bars in chronological order and
// returns the first stop-loss or take-profit touch. When both levels are
// satisfiable inside the same bar, stop-loss wins: risk control first. The
// intrabar crossing order is not observable from bar data, so this is a
// deliberate modeling choice.
func scanIntradayExit(bars []domain.MinuteBar, stopPrice, takeProfitPrice float64) (exitTrigger, bool) {
	for i := range bars {
		bar := &bars[i]
		if bar.Low <= stopPrice {
			return exitTrigger{reason: domain.ReasonStopLoss, time: bar.Timestamp}, true
		}
		if bar.High >= takeProfitPrice {
			return exitTrigger{reason: domain.ReasonTakeProfit, time: bar.Timestamp}, true
		}
	}
	return exitTrigger{}, false
}

// decideExit resolves the day's exit decision for a position under the
// strict priority stop_loss > take_profit > max_hold. At most one exit
// fires per symbol per day; once a reason fires, competing reasons are
// suppressed: a position can only be closed once.
func decideExit(pos *domain.Position, bars []domain.MinuteBar, maxHoldDays int) (exitTrigger, bool) {
	if trig, ok := scanIntradayExit(bars, pos.StopPrice, pos.TakeProfitPrice); ok {
		return trig, true
	}
	if pos.HoldDays >= maxHoldDays {
		return exitTrigger{reason: domain.ReasonMaxHold}, true
	}
	return exitTrigger{}, false
}
