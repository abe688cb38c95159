package backtest

import "errors"

// Whole-run precondition failures. These abort the simulation before any
// day is processed. Per-symbol, per-day failures are never errors: they are
// absorbed into the order log as rejection reasons and the loop continues.
var (
	ErrMissingCalendar    = errors.New("backtest: no trading dates in the configured window")
	ErrMissingFactorPanel = errors.New("backtest: factor panel is empty")
)
