package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"tradebot/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ QuoteStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore and QuoteStore using Parquet files on
// disk.
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

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// QuoteRecord is the Parquet schema for top-of-book snapshots.
type QuoteRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	BidPrice  float64 `parquet:"bid_price"`
	BidSize   int64   `parquet:"bid_size"`
	AskPrice  float64 `parquet:"ask_price"`
	AskSize   int64   `parquet:"ask_size"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes US bars to Parquet files, one file per symbol and year:
//
//	<DataDir>/us/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	return s.WriteBarsForMarket(bars, string(domain.MarketUS))
}

// WriteBarsForMarket writes bars to Parquet grouped by symbol and year under
// the given market directory, merging with what is already on disk.
func (s *ParquetStore) WriteBarsForMarket(bars []domain.Bar, market string) error {
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: b.Symbol, year: b.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:     b.Symbol,
			Timestamp:  b.Timestamp.UnixMilli(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			TradeCount: b.TradeCount,
			VWAP:       b.VWAP,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, market, time.Date(k.year, 1, 1, 0, 0, 0, 0, time.UTC))
		existing, err := readExisting[BarRecord](path)
		if err != nil {
			return err
		}
		merged := mergeRecords(existing, records,
			func(r BarRecord) int64 { return r.Timestamp })
		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol and time range.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		path := s.barPath(symbol, market, time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC))
		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp)
			if inRange(ts, start, end) {
				bars = append(bars, domain.Bar{
					Symbol:     r.Symbol,
					Timestamp:  ts,
					Open:       r.Open,
					High:       r.High,
					Low:        r.Low,
					Close:      r.Close,
					Volume:     r.Volume,
					TradeCount: r.TradeCount,
					VWAP:       r.VWAP,
				})
			}
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	dir := filepath.Join(s.DataDir, market, "daily")
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
// QuoteStore implementation
// ---------------------------------------------------------------------------

// WriteQuotes appends quotes to Parquet files, one file per symbol and
// calendar date of the quote timestamp in its own location (callers pass
// exchange-local times):
//
//	<DataDir>/us/quotes/<SYMBOL>/<YYYY-MM-DD>.parquet
//
// Quotes are deduplicated by timestamp.
func (s *ParquetStore) WriteQuotes(_ context.Context, quotes []domain.Quote) error {
	type key struct {
		symbol string
		date   string
	}
	groups := make(map[key][]QuoteRecord)
	for _, q := range quotes {
		k := key{symbol: q.Symbol, date: q.Timestamp.Format("2006-01-02")}
		groups[k] = append(groups[k], QuoteRecord{
			Symbol:    q.Symbol,
			Timestamp: q.Timestamp.UnixMilli(),
			BidPrice:  q.BidPrice,
			BidSize:   q.BidSize,
			AskPrice:  q.AskPrice,
			AskSize:   q.AskSize,
		})
	}

	for k, records := range groups {
		path := s.quotePath(k.symbol, k.date)
		existing, err := readExisting[QuoteRecord](path)
		if err != nil {
			return err
		}
		merged := mergeRecords(existing, records,
			func(r QuoteRecord) int64 { return r.Timestamp })
		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing quotes for %s/%s: %w", k.symbol, k.date, err)
		}
	}
	return nil
}

// ReadQuotes reads quotes for symbol within [start, end]. Files are looked up
// by the calendar dates of start..end in start's location.
func (s *ParquetStore) ReadQuotes(_ context.Context, symbol string, start, end time.Time) ([]domain.Quote, error) {
	var quotes []domain.Quote
	first := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	for d := first; !d.After(end); d = d.AddDate(0, 0, 1) {
		path := s.quotePath(symbol, d.Format("2006-01-02"))
		records, err := readParquetFile[QuoteRecord](path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp)
			if inRange(ts, start, end) {
				quotes = append(quotes, domain.Quote{
					Symbol:    r.Symbol,
					Timestamp: ts,
					BidPrice:  r.BidPrice,
					BidSize:   r.BidSize,
					AskPrice:  r.AskPrice,
					AskSize:   r.AskSize,
				})
			}
		}
	}
	return quotes, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, market string, t time.Time) string {
	year := fmt.Sprintf("%d", t.Year())
	return filepath.Join(s.DataDir, market, "daily", strings.ToUpper(symbol), year+".parquet")
}

// quotePath returns the filesystem path for a quote Parquet file.
// Layout: <dataDir>/us/quotes/<SYMBOL>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) quotePath(symbol, date string) string {
	return filepath.Join(s.DataDir, string(domain.MarketUS), "quotes", strings.ToUpper(symbol), date+".parquet")
}

func inRange(ts, start, end time.Time) bool {
	return !ts.Before(start) && !ts.After(end)
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, records); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

// readExisting reads the records already at path; a missing file has none.
func readExisting[T any](path string) ([]T, error) {
	records, err := readParquetFile[T](path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading existing %s: %w", path, err)
	}
	return records, nil
}

// mergeRecords deduplicates records by timestamp, preferring incoming over
// existing ones, and returns them in timestamp order. Each file holds a
// single symbol, so the timestamp alone is the key.
func mergeRecords[T any](existing, incoming []T, ts func(T) int64) []T {
	seen := make(map[int64]T, len(existing)+len(incoming))
	for _, r := range existing {
		seen[ts(r)] = r
	}
	for _, r := range incoming {
		seen[ts(r)] = r
	}

	merged := make([]T, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return ts(merged[i]) < ts(merged[j])
	})
	return merged
}
