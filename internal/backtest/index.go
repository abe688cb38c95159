package backtest

import (
	"sort"
	"time"

	"tradesys/internal/domain"
	"tradesys/internal/util"
)

// dayKey addresses one (symbol, date) cell of a panel.
type dayKey struct {
	symbol string
	date   string // YYYY-MM-DD
}

// MarketData is the immutable lookup structure the simulation runs against:
// (symbol, date) → daily bar, (symbol, date) → chronologically sorted minute
// bars, and date → alpha-ranked factor cross-section. Built once before the
// loop starts and injected read-only into the backtester.
type MarketData struct {
	daily   map[dayKey]*domain.PriceBar
	minutes map[dayKey][]domain.MinuteBar
	factors map[string][]domain.FactorRow
}

// NewMarketData indexes the fully materialized input panels. Minute bars are
// sorted by timestamp within each (symbol, date) group; factor cross-sections
// are sorted by alpha score descending, ties broken by symbol for
// determinism.
func NewMarketData(daily []domain.PriceBar, minutes []domain.MinuteBar, factors []domain.FactorRow) *MarketData {
	md := &MarketData{
		daily:   make(map[dayKey]*domain.PriceBar, len(daily)),
		minutes: make(map[dayKey][]domain.MinuteBar),
		factors: make(map[string][]domain.FactorRow),
	}

	for i := range daily {
		b := &daily[i]
		md.daily[dayKey{b.Symbol, util.Midnight(b.Date).Format(domain.DateLayout)}] = b
	}

	for _, m := range minutes {
		k := dayKey{m.Symbol, util.Midnight(m.Date).Format(domain.DateLayout)}
		md.minutes[k] = append(md.minutes[k], m)
	}
	for k := range md.minutes {
		bars := md.minutes[k]
		sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	}

	for _, f := range factors {
		d := util.Midnight(f.Date).Format(domain.DateLayout)
		md.factors[d] = append(md.factors[d], f)
	}
	for d := range md.factors {
		rows := md.factors[d]
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].AlphaScore != rows[j].AlphaScore {
				return rows[i].AlphaScore > rows[j].AlphaScore
			}
			return rows[i].Symbol < rows[j].Symbol
		})
	}

	return md
}

// DailyBar returns the daily bar for (symbol, date), or ok=false when the
// symbol has no data that day.
func (md *MarketData) DailyBar(symbol string, date time.Time) (*domain.PriceBar, bool) {
	b, ok := md.daily[dayKey{symbol, util.Midnight(date).Format(domain.DateLayout)}]
	return b, ok
}

// MinuteBars returns the sorted intraday bars for (symbol, date); nil when
// none exist.
func (md *MarketData) MinuteBars(symbol string, date time.Time) []domain.MinuteBar {
	return md.minutes[dayKey{symbol, util.Midnight(date).Format(domain.DateLayout)}]
}

// CrossSection returns the factor rows for a date, ranked by alpha score
// descending; nil when the date has no panel.
func (md *MarketData) CrossSection(date time.Time) []domain.FactorRow {
	return md.factors[util.Midnight(date).Format(domain.DateLayout)]
}

// HasFactors reports whether any factor rows were loaded at all.
func (md *MarketData) HasFactors() bool {
	return len(md.factors) > 0
}
