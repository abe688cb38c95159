package util

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"tradesys/internal/domain"
)

// TradingCalendar is an ordered, gapless sequence of valid trading dates
// spanning the backtest window. It is built once from an explicit date list
// and never mutated.
type TradingCalendar struct {
	dates []time.Time
	index map[string]int // date string → position in dates
}

// NewTradingCalendar creates a TradingCalendar from the given dates. Input
// dates are normalized to midnight UTC, deduplicated, and sorted.
func NewTradingCalendar(dates []time.Time) *TradingCalendar {
	seen := make(map[string]time.Time, len(dates))
	for _, d := range dates {
		nd := Midnight(d)
		seen[nd.Format(domain.DateLayout)] = nd
	}

	sorted := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	index := make(map[string]int, len(sorted))
	for i, d := range sorted {
		index[d.Format(domain.DateLayout)] = i
	}
	return &TradingCalendar{dates: sorted, index: index}
}

// LoadTradingCalendar reads a calendar file with one YYYY-MM-DD date per
// line. Blank lines and lines starting with '#' are skipped.
func LoadTradingCalendar(path string) (*TradingCalendar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var dates []time.Time
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		d, err := time.Parse(domain.DateLayout, line)
		if err != nil {
			return nil, fmt.Errorf("parsing calendar date %q: %w", line, err)
		}
		dates = append(dates, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return NewTradingCalendar(dates), nil
}

// Len returns the number of trading dates in the calendar.
func (tc *TradingCalendar) Len() int {
	return len(tc.dates)
}

// Contains reports whether d is a trading date.
func (tc *TradingCalendar) Contains(d time.Time) bool {
	_, ok := tc.index[Midnight(d).Format(domain.DateLayout)]
	return ok
}

// Prev returns the last trading date strictly before d. The second return
// value is false when no earlier trading date exists.
func (tc *TradingCalendar) Prev(d time.Time) (time.Time, bool) {
	nd := Midnight(d)
	i := sort.Search(len(tc.dates), func(i int) bool { return !tc.dates[i].Before(nd) })
	if i == 0 {
		return time.Time{}, false
	}
	return tc.dates[i-1], true
}

// Next returns the first trading date strictly after d. The second return
// value is false when no later trading date exists.
func (tc *TradingCalendar) Next(d time.Time) (time.Time, bool) {
	nd := Midnight(d)
	i := sort.Search(len(tc.dates), func(i int) bool { return tc.dates[i].After(nd) })
	if i >= len(tc.dates) {
		return time.Time{}, false
	}
	return tc.dates[i], true
}

// Range returns all trading dates within [start, end], inclusive.
func (tc *TradingCalendar) Range(start, end time.Time) []time.Time {
	s, e := Midnight(start), Midnight(end)
	var out []time.Time
	for _, d := range tc.dates {
		if d.Before(s) || d.After(e) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Midnight truncates t to midnight UTC. Dates are compared at day
// resolution everywhere in the simulation.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
