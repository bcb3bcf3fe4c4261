package indicators

import (
	"context"
	"fmt"
	"time"

	"tradebot/internal/domain"
	"tradebot/internal/market"
)

// BarFeed fetches a fixed-width, fixed-lookback candle window per ticker.
type BarFeed struct {
	data      market.Data
	timeframe market.Timeframe
	lookback  time.Duration
	now       func() time.Time
}

// NewBarFeed creates a BarFeed reading tf candles over the trailing
// lookback window.
func NewBarFeed(data market.Data, tf market.Timeframe, lookback time.Duration) *BarFeed {
	return &BarFeed{data: data, timeframe: tf, lookback: lookback, now: time.Now}
}

// Bars returns the candle window for ticker.
func (f *BarFeed) Bars(ctx context.Context, ticker string) ([]domain.Bar, error) {
	end := f.now()
	bars, err := f.data.Bars(ctx, ticker, f.timeframe, end.Add(-f.lookback), end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no %s bars for %s", f.timeframe, ticker)
	}
	return bars, nil
}

// TrendService classifies tickers from their recent candles.
type TrendService struct {
	feed       *BarFeed
	fast, slow int
}

// NewTrendService creates a TrendService using fast/slow EMAs over feed.
func NewTrendService(feed *BarFeed, fast, slow int) *TrendService {
	return &TrendService{feed: feed, fast: fast, slow: slow}
}

// Trend returns the current trend of ticker.
func (s *TrendService) Trend(ctx context.Context, ticker string) (domain.Trend, error) {
	bars, err := s.feed.Bars(ctx, ticker)
	if err != nil {
		return "", fmt.Errorf("trend %s: %w", ticker, err)
	}
	return ClassifyTrend(Closes(bars), s.fast, s.slow), nil
}
