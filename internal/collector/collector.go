// Package collector snapshots top-of-book quotes during the session and
// archives daily candles once it closes.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tradebot/internal/domain"
	"tradebot/internal/market"
	"tradebot/internal/metrics"
)

// Source supplies quotes and candles.
type Source interface {
	LatestQuote(ctx context.Context, ticker string) (domain.Quote, error)
	Bars(ctx context.Context, ticker string, tf market.Timeframe, start, end time.Time) ([]domain.Bar, error)
}

// Sink persists what the collector gathers.
type Sink interface {
	WriteQuotes(ctx context.Context, quotes []domain.Quote) error
	WriteBars(ctx context.Context, bars []domain.Bar) error
}

// SessionCalendar reports whether a day's session has finished.
type SessionCalendar interface {
	SessionOver(t time.Time) bool
	Location() *time.Location
}

var daily = market.Timeframe{N: 1, Unit: "Day"}

// Collector gathers market data for a fixed ticker list.
type Collector struct {
	src     Source
	sink    Sink
	cal     SessionCalendar
	tickers []string
	log     *slog.Logger

	mu       sync.Mutex
	archived string // date of the last completed archive
}

// New creates a Collector.
func New(src Source, sink Sink, cal SessionCalendar, tickers []string) *Collector {
	return &Collector{
		src:     src,
		sink:    sink,
		cal:     cal,
		tickers: tickers,
		log:     slog.Default().With("component", "collector"),
	}
}

// Collect reads the latest quote for every ticker and appends the batch to
// the sink. Tickers whose quote cannot be read are skipped. It returns the
// number of quotes written.
func (c *Collector) Collect(ctx context.Context) (int, error) {
	loc := c.cal.Location()
	quotes := make([]domain.Quote, 0, len(c.tickers))
	for _, t := range c.tickers {
		q, err := c.src.LatestQuote(ctx, t)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			c.log.Warn("quote unavailable", "ticker", t, "error", err)
			continue
		}
		q.Symbol = t
		q.Timestamp = q.Timestamp.In(loc)
		quotes = append(quotes, q)
	}
	if len(quotes) == 0 {
		return 0, nil
	}
	if err := c.sink.WriteQuotes(ctx, quotes); err != nil {
		return 0, fmt.Errorf("writing quotes: %w", err)
	}
	metrics.QuotesCollected.Add(float64(len(quotes)))
	c.log.Debug("quotes collected", "count", len(quotes))
	return len(quotes), nil
}

// Archive writes the daily candle of now's date for every ticker, once per
// date and only after that date's session is over. It reports whether the
// archive ran.
func (c *Collector) Archive(ctx context.Context, now time.Time) (bool, error) {
	if !c.cal.SessionOver(now) {
		return false, nil
	}
	local := now.In(c.cal.Location())
	date := local.Format("2006-01-02")

	c.mu.Lock()
	done := c.archived == date
	c.mu.Unlock()
	if done {
		return false, nil
	}

	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	end := start.AddDate(0, 0, 1)
	var (
		bars []domain.Bar
		errs []error
	)
	for _, t := range c.tickers {
		got, err := c.src.Bars(ctx, t, daily, start, end)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t, err))
			continue
		}
		for _, b := range got {
			if b.Timestamp.In(start.Location()).Format("2006-01-02") == date {
				b.Symbol = t
				bars = append(bars, b)
			}
		}
	}
	if len(bars) > 0 {
		if err := c.sink.WriteBars(ctx, bars); err != nil {
			return false, fmt.Errorf("archiving bars: %w", err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		// Retried on the next idle tick.
		c.log.Warn("daily archive incomplete", "date", date, "error", err)
		return true, nil
	}

	c.mu.Lock()
	c.archived = date
	c.mu.Unlock()
	c.log.Info("daily bars archived", "date", date, "count", len(bars))
	return true, nil
}

// Idle adapts Archive to the scheduler's idle hook.
func (c *Collector) Idle(ctx context.Context, now time.Time) error {
	_, err := c.Archive(ctx, now)
	return err
}

// Run adapts Collect to the scheduler's cycle function.
func (c *Collector) Run(ctx context.Context) error {
	_, err := c.Collect(ctx)
	return err
}
