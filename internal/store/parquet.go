package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"golang.org/x/sync/errgroup"

	"tradesys/internal/domain"
	"tradesys/internal/util"
)

// Compile-time interface check.
var _ PanelStore = (*ParquetStore)(nil)

// readConcurrency bounds the number of parquet files opened in parallel
// while loading a panel.
const readConcurrency = 32

// ParquetStore implements PanelStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// DailyBarRecord is the Parquet schema for daily bar data.
type DailyBarRecord struct {
	Symbol      string  `parquet:"symbol"`
	Date        int64   `parquet:"date,timestamp(millisecond)"` // Unix ms, midnight UTC
	Open        float64 `parquet:"open"`
	High        float64 `parquet:"high"`
	Low         float64 `parquet:"low"`
	Close       float64 `parquet:"close"`
	PrevClose   float64 `parquet:"prev_close"`
	Volume      int64   `parquet:"volume"`
	Turnover    float64 `parquet:"turnover"`
	TradeStatus int32   `parquet:"trade_status"`
	IsST        bool    `parquet:"is_st"`
}

// MinuteBarRecord is the Parquet schema for intraday bar data.
type MinuteBarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// FactorRecord is the Parquet schema for one factor cross-section row. The
// factor columns mirror the upstream scoring pipeline's panel.
type FactorRecord struct {
	Symbol     string  `parquet:"symbol"`
	Date       int64   `parquet:"date,timestamp(millisecond)"` // Unix ms, midnight UTC
	L1         float64 `parquet:"l1"`
	L2         float64 `parquet:"l2"`
	S1         float64 `parquet:"s1"`
	S2         float64 `parquet:"s2"`
	S3         float64 `parquet:"s3"`
	S4         float64 `parquet:"s4"`
	F1         float64 `parquet:"f1"`
	F2         float64 `parquet:"f2"`
	R1         float64 `parquet:"r1"`
	AlphaScore float64 `parquet:"alpha_score"`
}

// factorNames lists the named factor columns, in panel order.
var factorNames = []string{"L1", "L2", "S1", "S2", "S3", "S4", "F1", "F2", "R1"}

func (r *FactorRecord) toDomain() domain.FactorRow {
	return domain.FactorRow{
		Symbol: r.Symbol,
		Date:   time.UnixMilli(r.Date).UTC(),
		Factors: map[string]float64{
			"L1": r.L1, "L2": r.L2,
			"S1": r.S1, "S2": r.S2, "S3": r.S3, "S4": r.S4,
			"F1": r.F1, "F2": r.F2, "R1": r.R1,
		},
		AlphaScore: r.AlphaScore,
	}
}

func factorRecord(row domain.FactorRow) FactorRecord {
	rec := FactorRecord{
		Symbol:     row.Symbol,
		Date:       util.Midnight(row.Date).UnixMilli(),
		AlphaScore: row.AlphaScore,
	}
	dst := map[string]*float64{
		"L1": &rec.L1, "L2": &rec.L2,
		"S1": &rec.S1, "S2": &rec.S2, "S3": &rec.S3, "S4": &rec.S4,
		"F1": &rec.F1, "F2": &rec.F2, "R1": &rec.R1,
	}
	for _, name := range factorNames {
		if v, ok := row.Factors[name]; ok {
			*dst[name] = v
		}
	}
	return rec
}

// ---------------------------------------------------------------------------
// Daily bars
// ---------------------------------------------------------------------------

// WriteDailyBars writes daily bars to Parquet files organized by symbol and
// year, merging with any existing file:
//
//	<DataDir>/cn/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteDailyBars(_ context.Context, bars []domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]DailyBarRecord)
	for _, b := range bars {
		k := key{symbol: b.Symbol, year: b.Date.Year()}
		groups[k] = append(groups[k], DailyBarRecord{
			Symbol:      b.Symbol,
			Date:        util.Midnight(b.Date).UnixMilli(),
			Open:        b.Open,
			High:        b.High,
			Low:         b.Low,
			Close:       b.Close,
			PrevClose:   b.PrevClose,
			Volume:      b.Volume,
			Turnover:    b.Turnover,
			TradeStatus: int32(b.TradeStatus),
			IsST:        b.IsST,
		})
	}

	for k, records := range groups {
		path := s.dailyPath(k.symbol, k.year)

		existing, _ := readParquetFile[DailyBarRecord](path)
		merged := mergeByKey(existing, records, func(r DailyBarRecord) string {
			return fmt.Sprintf("%s|%d", r.Symbol, r.Date)
		}, func(a, b DailyBarRecord) bool { return a.Date < b.Date })

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing daily bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadDailyPanel reads daily bars for every symbol within [start, end].
// Per-symbol files are read with bounded concurrency; the returned slice is
// sorted by (symbol, date).
func (s *ParquetStore) ReadDailyPanel(ctx context.Context, start, end time.Time) ([]domain.PriceBar, error) {
	symbols, err := s.ListSymbols(ctx)
	if err != nil {
		return nil, err
	}

	perSymbol := make([][]domain.PriceBar, len(symbols))
	sem := make(chan struct{}, readConcurrency)
	g, _ := errgroup.WithContext(ctx)

	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			var bars []domain.PriceBar
			for year := start.Year(); year <= end.Year(); year++ {
				records, err := readParquetFile[DailyBarRecord](s.dailyPath(sym, year))
				if err != nil {
					continue // no file for this year
				}
				for _, r := range records {
					d := time.UnixMilli(r.Date).UTC()
					if d.Before(start) || d.After(end) {
						continue
					}
					bars = append(bars, domain.PriceBar{
						Symbol:      r.Symbol,
						Date:        d,
						Open:        r.Open,
						High:        r.High,
						Low:         r.Low,
						Close:       r.Close,
						PrevClose:   r.PrevClose,
						Volume:      r.Volume,
						Turnover:    r.Turnover,
						TradeStatus: int(r.TradeStatus),
						IsST:        r.IsST,
					})
				}
			}
			perSymbol[i] = bars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.PriceBar
	for _, bars := range perSymbol {
		out = append(out, bars...)
	}
	return out, nil
}

// ListSymbols lists all symbols that have daily bar data.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	dir := filepath.Join(s.DataDir, "cn", "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// Minute bars
// ---------------------------------------------------------------------------

// WriteMinuteBars writes intraday bars to Parquet files organized by symbol
// and date:
//
//	<DataDir>/cn/minute/<SYMBOL>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) WriteMinuteBars(_ context.Context, bars []domain.MinuteBar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		date   string
	}
	groups := make(map[key][]MinuteBarRecord)
	for _, b := range bars {
		k := key{symbol: b.Symbol, date: util.Midnight(b.Date).Format(domain.DateLayout)}
		groups[k] = append(groups[k], MinuteBarRecord{
			Symbol:    b.Symbol,
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	for k, records := range groups {
		path := s.minutePath(k.symbol, k.date)

		existing, _ := readParquetFile[MinuteBarRecord](path)
		merged := mergeByKey(existing, records, func(r MinuteBarRecord) string {
			return fmt.Sprintf("%s|%d", r.Symbol, r.Timestamp)
		}, func(a, b MinuteBarRecord) bool { return a.Timestamp < b.Timestamp })

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing minute bars for %s/%s: %w", k.symbol, k.date, err)
		}
	}
	return nil
}

// ReadMinutePanel reads intraday bars for every symbol within [start, end]
// with bounded concurrency.
func (s *ParquetStore) ReadMinutePanel(ctx context.Context, start, end time.Time) ([]domain.MinuteBar, error) {
	symbols, err := s.listMinuteSymbols()
	if err != nil {
		return nil, err
	}

	perSymbol := make([][]domain.MinuteBar, len(symbols))
	sem := make(chan struct{}, readConcurrency)
	g, _ := errgroup.WithContext(ctx)

	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			var bars []domain.MinuteBar
			for d := util.Midnight(start); !d.After(end); d = d.AddDate(0, 0, 1) {
				date := d.Format(domain.DateLayout)
				records, err := readParquetFile[MinuteBarRecord](s.minutePath(sym, date))
				if err != nil {
					continue
				}
				for _, r := range records {
					ts := time.UnixMilli(r.Timestamp).UTC()
					bars = append(bars, domain.MinuteBar{
						Symbol:    r.Symbol,
						Date:      d,
						Timestamp: ts,
						Open:      r.Open,
						High:      r.High,
						Low:       r.Low,
						Close:     r.Close,
						Volume:    r.Volume,
					})
				}
			}
			perSymbol[i] = bars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.MinuteBar
	for _, bars := range perSymbol {
		out = append(out, bars...)
	}
	return out, nil
}

func (s *ParquetStore) listMinuteSymbols() ([]string, error) {
	dir := filepath.Join(s.DataDir, "cn", "minute")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// Factor rows
// ---------------------------------------------------------------------------

// WriteFactorRows writes factor cross-sections, one file per date:
//
//	<DataDir>/cn/factor/<YYYY-MM-DD>.parquet
func (s *ParquetStore) WriteFactorRows(_ context.Context, rows []domain.FactorRow) error {
	if len(rows) == 0 {
		return nil
	}

	groups := make(map[string][]FactorRecord)
	for _, row := range rows {
		date := util.Midnight(row.Date).Format(domain.DateLayout)
		groups[date] = append(groups[date], factorRecord(row))
	}

	for date, records := range groups {
		path := s.factorPath(date)

		existing, _ := readParquetFile[FactorRecord](path)
		merged := mergeByKey(existing, records, func(r FactorRecord) string {
			return r.Symbol
		}, func(a, b FactorRecord) bool { return a.Symbol < b.Symbol })

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing factor rows for %s: %w", date, err)
		}
	}
	return nil
}

// ReadFactorPanel reads all factor cross-sections within [start, end].
func (s *ParquetStore) ReadFactorPanel(ctx context.Context, start, end time.Time) ([]domain.FactorRow, error) {
	var mu sync.Mutex
	var out []domain.FactorRow

	sem := make(chan struct{}, readConcurrency)
	g, _ := errgroup.WithContext(ctx)

	for d := util.Midnight(start); !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format(domain.DateLayout)
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			records, err := readParquetFile[FactorRecord](s.factorPath(date))
			if err != nil {
				return nil // no cross-section for this date
			}
			rows := make([]domain.FactorRow, len(records))
			for i := range records {
				rows[i] = records[i].toDomain()
			}
			mu.Lock()
			out = append(out, rows...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// dailyPath returns the filesystem path for a daily bar Parquet file.
func (s *ParquetStore) dailyPath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "cn", "daily", symbol, fmt.Sprintf("%d.parquet", year))
}

// minutePath returns the filesystem path for a minute bar Parquet file.
func (s *ParquetStore) minutePath(symbol, date string) string {
	return filepath.Join(s.DataDir, "cn", "minute", symbol, date+".parquet")
}

// factorPath returns the filesystem path for a factor cross-section file.
func (s *ParquetStore) factorPath(date string) string {
	return filepath.Join(s.DataDir, "cn", "factor", date+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeByKey deduplicates records by key, preferring incoming records over
// existing ones, and returns them sorted by less.
func mergeByKey[T any](existing, incoming []T, key func(T) string, less func(a, b T) bool) []T {
	seen := make(map[string]T, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key(r)] = r
	}
	for _, r := range incoming {
		seen[key(r)] = r
	}

	merged := make([]T, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return less(merged[i], merged[j]) })
	return merged
}
