package backtest

import (
	"math"
	"strings"

	"tradesys/internal/domain"
)

// priceTick is the minimum price increment on both exchanges.
const priceTick = 0.01

// onePriceTolerance absorbs float noise when comparing a bar's high/low
// against a rounded limit price.
const onePriceTolerance = 1e-4

// PriceLimitModel computes the legal daily price band for a symbol from its
// previous close. The limit rate depends on the listing board: main board
// ±10%, ST issues ±5%, ChiNext (300xxx) and STAR (688xxx) ±20%. Limits are
// rounded to the minimum price increment.
type PriceLimitModel struct{}

// BoardOf classifies a symbol by its listing board. Symbols may carry a
// BaoStock-style exchange prefix ("sh.688001", "sz.300750") or be bare
// six-digit codes.
func BoardOf(symbol string) domain.Board {
	code := symbol
	if i := strings.IndexByte(code, '.'); i >= 0 {
		code = code[i+1:]
	}
	switch {
	case strings.HasPrefix(code, "300"), strings.HasPrefix(code, "301"):
		return domain.BoardChiNext
	case strings.HasPrefix(code, "688"):
		return domain.BoardSTAR
	default:
		return domain.BoardMain
	}
}

// LimitRate returns the daily price-limit rate for a symbol. ST status only
// narrows the band on the main board; ChiNext and STAR keep their 20% band
// regardless.
func (PriceLimitModel) LimitRate(symbol string, isST bool) float64 {
	switch BoardOf(symbol) {
	case domain.BoardChiNext, domain.BoardSTAR:
		return 0.20
	default:
		if isST {
			return 0.05
		}
		return 0.10
	}
}

// LimitPrices returns today's (limitDown, limitUp) band around prevClose,
// rounded to the price tick.
func (m PriceLimitModel) LimitPrices(symbol string, prevClose float64, isST bool) (float64, float64) {
	rate := m.LimitRate(symbol, isST)
	down := roundTick(prevClose * (1 - rate))
	up := roundTick(prevClose * (1 + rate))
	return down, up
}

// IsOnePriceLimit reports whether the day's entire trading range collapsed
// to a single price equal to the given limit: a thin session with no real
// counter-liquidity. A buy cannot fill on a one-price board at the upper
// limit, and a sell cannot fill at the lower limit.
func (PriceLimitModel) IsOnePriceLimit(high, low, limit float64) bool {
	return math.Abs(high-low) <= onePriceTolerance && math.Abs(high-limit) <= onePriceTolerance
}

func roundTick(p float64) float64 {
	return math.Round(p/priceTick) * priceTick
}
