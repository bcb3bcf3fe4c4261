package strategy

import (
	"context"
	"log/slog"

	"tradebot/internal/domain"
)

// TrendSource reports the current trend of a ticker.
type TrendSource interface {
	Trend(ctx context.Context, ticker string) (domain.Trend, error)
}

// TrendFilter keeps only the inner strategy's signals that agree with the
// ticker's trend: BUY in an uptrend, SELL in a downtrend.
type TrendFilter struct {
	inner  Strategy
	trends TrendSource
	log    *slog.Logger
}

// NewTrendFilter wraps inner.
func NewTrendFilter(inner Strategy, trends TrendSource) *TrendFilter {
	return &TrendFilter{
		inner:  inner,
		trends: trends,
		log:    slog.Default().With("strategy", "trend:"+inner.Name()),
	}
}

// Name returns "trend:<inner>".
func (f *TrendFilter) Name() string { return "trend:" + f.inner.Name() }

// ProduceSignals filters the inner strategy's output.
func (f *TrendFilter) ProduceSignals(ctx context.Context, tickers []string) ([]domain.Signal, error) {
	signals, err := f.inner.ProduceSignals(ctx, tickers)
	if err != nil {
		return nil, err
	}

	kept := make([]domain.Signal, 0, len(signals))
	for _, s := range signals {
		trend, err := f.trends.Trend(ctx, s.Ticker)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.log.Warn("trend lookup failed, dropping signal", "ticker", s.Ticker, "error", err)
			continue
		}
		if Agrees(s.Action, trend) {
			kept = append(kept, s)
		}
	}
	return kept, nil
}

// Agrees reports whether action trades with trend.
func Agrees(action domain.Action, trend domain.Trend) bool {
	return (action == domain.ActionBuy && trend == domain.TrendUp) ||
		(action == domain.ActionSell && trend == domain.TrendDown)
}
