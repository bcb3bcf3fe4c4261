// Package market provides price and candle reads used by strategies, the
// executor, and the quote collector.
package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
	"tradebot/internal/util"
)

// Timeframe is a candle width such as 5Min, 15Min, 1Hour, or 1Day.
type Timeframe struct {
	N    int
	Unit string // "Min", "Hour", "Day"
}

// ParseTimeframe parses strings like "15Min", "1Hour", "1Day".
func ParseTimeframe(s string) (Timeframe, error) {
	for _, unit := range []string{"Min", "Hour", "Day"} {
		if strings.HasSuffix(s, unit) {
			n, err := strconv.Atoi(strings.TrimSuffix(s, unit))
			if err != nil || n <= 0 {
				return Timeframe{}, fmt.Errorf("invalid timeframe %q", s)
			}
			return Timeframe{N: n, Unit: unit}, nil
		}
	}
	return Timeframe{}, fmt.Errorf("invalid timeframe %q", s)
}

// Duration is the wall-clock width of one candle.
func (tf Timeframe) Duration() time.Duration {
	switch tf.Unit {
	case "Hour":
		return time.Duration(tf.N) * time.Hour
	case "Day":
		return time.Duration(tf.N) * 24 * time.Hour
	default:
		return time.Duration(tf.N) * time.Minute
	}
}

func (tf Timeframe) String() string { return strconv.Itoa(tf.N) + tf.Unit }

// Data is the market-data surface the engine reads.
type Data interface {
	// Bars returns candles for ticker in [start, end], oldest first.
	Bars(ctx context.Context, ticker string, tf Timeframe, start, end time.Time) ([]domain.Bar, error)

	// LatestPrice returns the last traded price.
	LatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error)

	// LatestQuote returns the current top of book.
	LatestQuote(ctx context.Context, ticker string) (domain.Quote, error)
}

// Compile-time interface check.
var _ Data = (*Retrying)(nil)

// Retrying wraps Data reads in a retry policy.
type Retrying struct {
	inner  Data
	policy util.Policy
}

// WithRetry wraps d with policy.
func WithRetry(d Data, policy util.Policy) *Retrying {
	return &Retrying{inner: d, policy: policy}
}

func (r *Retrying) Bars(ctx context.Context, ticker string, tf Timeframe, start, end time.Time) ([]domain.Bar, error) {
	return util.Call(ctx, r.policy, "bars", func(ctx context.Context) ([]domain.Bar, error) {
		return r.inner.Bars(ctx, ticker, tf, start, end)
	})
}

func (r *Retrying) LatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	return util.Call(ctx, r.policy, "latest_price", func(ctx context.Context) (decimal.Decimal, error) {
		return r.inner.LatestPrice(ctx, ticker)
	})
}

func (r *Retrying) LatestQuote(ctx context.Context, ticker string) (domain.Quote, error) {
	return util.Call(ctx, r.policy, "latest_quote", func(ctx context.Context) (domain.Quote, error) {
		return r.inner.LatestQuote(ctx, ticker)
	})
}
