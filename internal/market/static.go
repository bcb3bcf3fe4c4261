package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
)

// Compile-time interface check.
var _ Data = (*Static)(nil)

// Static serves fixed market data from memory. It backs dry runs and tests.
type Static struct {
	mu     sync.RWMutex
	bars   map[string][]domain.Bar
	prices map[string]decimal.Decimal
	quotes map[string]domain.Quote
}

// NewStatic creates an empty Static source.
func NewStatic() *Static {
	return &Static{
		bars:   make(map[string][]domain.Bar),
		prices: make(map[string]decimal.Decimal),
		quotes: make(map[string]domain.Quote),
	}
}

// SetBars replaces the candles served for ticker.
func (s *Static) SetBars(ticker string, bars []domain.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[ticker] = bars
}

// SetCloses builds one-minute candles from closes, ending now.
func (s *Static) SetCloses(ticker string, closes []float64) {
	now := time.Now().Truncate(time.Minute)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    ticker,
			Timestamp: now.Add(time.Duration(i-len(closes)+1) * time.Minute),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 1000,
		}
	}
	s.SetBars(ticker, bars)
}

// SetPrice sets the last price for ticker.
func (s *Static) SetPrice(ticker string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[ticker] = price
}

// SetQuote sets the top of book for ticker.
func (s *Static) SetQuote(q domain.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.Symbol] = q
}

// Bars returns all stored candles for ticker; the range is not applied.
func (s *Static) Bars(_ context.Context, ticker string, _ Timeframe, _, _ time.Time) ([]domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bars, ok := s.bars[ticker]
	if !ok {
		return nil, fmt.Errorf("no bars for %s", ticker)
	}
	return append([]domain.Bar(nil), bars...), nil
}

// LatestPrice returns the stored price, or the last close when none is set.
func (s *Static) LatestPrice(_ context.Context, ticker string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.prices[ticker]; ok {
		return p, nil
	}
	if bars := s.bars[ticker]; len(bars) > 0 {
		return decimal.NewFromFloat(bars[len(bars)-1].Close), nil
	}
	return decimal.Zero, fmt.Errorf("no price for %s", ticker)
}

// LatestQuote returns the stored quote.
func (s *Static) LatestQuote(_ context.Context, ticker string) (domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[ticker]
	if !ok {
		return domain.Quote{}, fmt.Errorf("no quote for %s", ticker)
	}
	return q, nil
}
