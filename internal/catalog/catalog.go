// Package catalog resolves tickers to brokerage instruments. The instrument
// list is fetched once per Catalog and kept for its lifetime.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
)

// Lister fetches the brokerage's instrument list.
type Lister interface {
	ListInstruments(ctx context.Context) ([]domain.Instrument, error)
}

// Catalog is an in-memory ticker index over one broker's instruments.
type Catalog struct {
	lister Lister
	tickFn func(ticker string) decimal.Decimal
	lotFn  func(ticker string) int64
	log    *slog.Logger

	mu       sync.Mutex
	loaded   bool
	byTicker map[string]domain.Instrument
}

// Option customises a Catalog.
type Option func(*Catalog)

// WithTicks sets the tick assigned to instruments the brokerage reports
// without one.
func WithTicks(fn func(ticker string) decimal.Decimal) Option {
	return func(c *Catalog) { c.tickFn = fn }
}

// WithLots sets the lot assigned to instruments.
func WithLots(fn func(ticker string) int64) Option {
	return func(c *Catalog) { c.lotFn = fn }
}

// New creates a Catalog over lister. Reads are not retried here; pass a
// retrying broker for that.
func New(lister Lister, opts ...Option) *Catalog {
	c := &Catalog{
		lister: lister,
		log:    slog.Default().With("component", "catalog"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Load fetches the instrument list on first call. Later calls are no-ops;
// a failed load is retried on the next call.
func (c *Catalog) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}

	insts, err := c.lister.ListInstruments(ctx)
	if err != nil {
		return fmt.Errorf("loading instruments: %w", err)
	}

	idx := make(map[string]domain.Instrument, len(insts))
	for _, inst := range insts {
		if c.tickFn != nil && inst.Tick.Sign() <= 0 {
			inst.Tick = c.tickFn(inst.Ticker)
		}
		if c.lotFn != nil {
			if lot := c.lotFn(inst.Ticker); lot > 0 {
				inst.Lot = lot
			}
		}
		idx[strings.ToUpper(inst.Ticker)] = inst
	}
	c.byTicker = idx
	c.loaded = true
	c.log.Info("instrument catalog loaded", "count", len(idx))
	return nil
}

// Instrument returns the instrument for ticker.
func (c *Catalog) Instrument(ctx context.Context, ticker string) (domain.Instrument, error) {
	if err := c.Load(ctx); err != nil {
		return domain.Instrument{}, err
	}
	c.mu.Lock()
	inst, ok := c.byTicker[strings.ToUpper(ticker)]
	c.mu.Unlock()
	if !ok {
		return domain.Instrument{}, fmt.Errorf("%s: %w", ticker, domain.ErrTickerNotFound)
	}
	return inst, nil
}

// Resolve returns the brokerage instrument ID for ticker.
func (c *Catalog) Resolve(ctx context.Context, ticker string) (string, error) {
	inst, err := c.Instrument(ctx, ticker)
	if err != nil {
		return "", err
	}
	return inst.ID, nil
}

// Validate returns the tickers that resolve, in input order. Unknown
// tickers are logged and dropped. A catalog load failure is returned.
func (c *Catalog) Validate(ctx context.Context, tickers []string) ([]string, error) {
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	valid := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if _, err := c.Resolve(ctx, t); err != nil {
			c.log.Warn("ticker not found, skipping", "ticker", t)
			continue
		}
		valid = append(valid, t)
	}
	return valid, nil
}
