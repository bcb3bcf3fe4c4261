package builtins

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebot/internal/config"
	"tradebot/internal/domain"
	"tradebot/internal/indicators"
	"tradebot/internal/market"
	"tradebot/internal/model"
)

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func feed(data market.Data) *indicators.BarFeed {
	return indicators.NewBarFeed(data, market.Timeframe{N: 1, Unit: "Min"}, time.Hour)
}

func tickersOf(signals []domain.Signal) []string {
	out := make([]string, len(signals))
	for i, s := range signals {
		out[i] = s.Ticker
	}
	return out
}

func TestRSIDecision(t *testing.T) {
	assert.Equal(t, domain.ActionSell, *RSIDecision(75, 30, 70))
	assert.Equal(t, domain.ActionBuy, *RSIDecision(25, 30, 70))
	assert.Nil(t, RSIDecision(50, 30, 70))
	assert.Nil(t, RSIDecision(70, 30, 70))
}

func TestRSIStrategy(t *testing.T) {
	data := market.NewStatic()
	data.SetCloses("UP", ramp(40, 10, 1))
	data.SetCloses("DOWN", ramp(40, 100, -1))

	s := NewRSI(feed(data), config.RSIConfig{Period: 14, Oversold: 30, Overbought: 70})
	got, err := s.ProduceSignals(context.Background(), []string{"DOWN", "MISSING", "UP"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Signal{
		{Ticker: "DOWN", Action: domain.ActionBuy},
		{Ticker: "UP", Action: domain.ActionSell},
	}, got)

	empty, err := s.ProduceSignals(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStochRSIDecision(t *testing.T) {
	tests := []struct {
		name               string
		kPrev, dPrev, k, d float64
		want               *domain.Action
	}{
		{"cross up in oversold", 0.05, 0.10, 0.15, 0.12, action(domain.ActionBuy)},
		{"cross up above low", 0.20, 0.25, 0.30, 0.26, nil},
		{"cross down in overbought", 0.95, 0.90, 0.85, 0.88, action(domain.ActionSell)},
		{"cross down below high", 0.75, 0.70, 0.60, 0.65, nil},
		{"no cross", 0.10, 0.20, 0.12, 0.22, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StochRSIDecision(tt.kPrev, tt.dPrev, tt.k, tt.d, 0.2, 0.8))
		})
	}
}

func TestStochRSIShortHistory(t *testing.T) {
	data := market.NewStatic()
	data.SetCloses("X", ramp(5, 10, 1))
	s := NewStochRSI(feed(data), config.StochRSIConfig{Period: 14, FastK: 3, FastD: 3, Low: 0.2, High: 0.8})
	got, err := s.ProduceSignals(context.Background(), []string{"X"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEMACross(t *testing.T) {
	up := append(ramp(40, 100, -0.5), 200)
	down := append(ramp(40, 100, 0.5), 10)

	data := market.NewStatic()
	data.SetCloses("UP", up)
	data.SetCloses("DOWN", down)
	data.SetCloses("FLAT", ramp(40, 100, 0.5))

	s := NewEMACross(feed(data), config.EMACrossConfig{Short: 9, Long: 21})
	got, err := s.ProduceSignals(context.Background(), []string{"UP", "DOWN", "FLAT"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Signal{
		{Ticker: "UP", Action: domain.ActionBuy},
		{Ticker: "DOWN", Action: domain.ActionSell},
	}, got)
}

func TestEMACrossDecision(t *testing.T) {
	tests := []struct {
		name                             string
		shortPrev, longPrev, short, long float64
		want                             *domain.Action
	}{
		{"upward cross", 99, 100, 101, 100, action(domain.ActionBuy)},
		{"upward from equal", 100, 100, 101, 100.5, action(domain.ActionBuy)},
		{"downward cross", 101, 100, 99, 100, action(domain.ActionSell)},
		{"downward from equal", 100, 100, 99, 99.5, action(domain.ActionSell)},
		{"still above", 101, 100, 102, 100, nil},
		{"still equal", 100, 100, 100, 100, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EMACrossDecision(tt.shortPrev, tt.longPrev, tt.short, tt.long))
		})
	}
}

type fakeRecommender map[string]domain.Recommendation

func (f fakeRecommender) Recommendation(_ context.Context, ticker string) (domain.Recommendation, error) {
	rec, ok := f[ticker]
	if !ok {
		return domain.RecommendationError, errors.New("scanner unavailable")
	}
	return rec, nil
}

func TestTradingView(t *testing.T) {
	s := NewTradingView(fakeRecommender{
		"A": domain.RecommendationStrongBuy,
		"B": domain.RecommendationBuy,
		"C": domain.RecommendationNeutral,
		"D": domain.RecommendationSell,
		"E": domain.RecommendationStrongSell,
		"F": domain.RecommendationError,
	})
	got, err := s.ProduceSignals(context.Background(), []string{"A", "B", "C", "D", "E", "F", "G"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Signal{
		{Ticker: "A", Action: domain.ActionBuy},
		{Ticker: "B", Action: domain.ActionBuy},
		{Ticker: "D", Action: domain.ActionSell},
		{Ticker: "E", Action: domain.ActionSell},
	}, got)
}

func TestModelStrategy(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + 3*math.Sin(float64(i)/5) + 0.05*float64(i)
	}
	rising := append([]float64(nil), closes...)
	rising[len(rising)-1] = rising[len(rising)-2] + 1
	falling := append([]float64(nil), closes...)
	falling[len(falling)-1] = falling[len(falling)-2] - 1

	data := market.NewStatic()
	data.SetCloses("RISE", rising)
	data.SetCloses("FALL", falling)
	data.SetCloses("NOMODEL", rising)

	store := model.NewFileStore(t.TempDir())
	bundle := &model.Bundle{
		Features:  []string{"ret_1"},
		Degree:    1,
		Mean:      []float64{0},
		Scale:     []float64{1},
		Classes:   []string{"SELL", "BUY"},
		Coef:      [][]float64{{100}},
		Intercept: []float64{0},
	}
	require.NoError(t, store.Save("RISE", bundle))
	require.NoError(t, store.Save("FALL", bundle))

	s := NewModel(store, feed(data))
	got, err := s.ProduceSignals(context.Background(), []string{"RISE", "NOMODEL", "FALL"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Signal{
		{Ticker: "RISE", Action: domain.ActionBuy},
		{Ticker: "FALL", Action: domain.ActionSell},
	}, got)
}

func TestRandomIsSeeded(t *testing.T) {
	tickers := []string{"A", "B", "C", "D", "E", "F", "G", "H"}
	a, err := NewRandom(rand.New(rand.NewSource(7))).ProduceSignals(context.Background(), tickers)
	require.NoError(t, err)
	b, err := NewRandom(rand.New(rand.NewSource(7))).ProduceSignals(context.Background(), tickers)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, tickers, tickersOf(a))
	for _, s := range a {
		assert.Contains(t, []domain.Action{domain.ActionBuy, domain.ActionSell}, s.Action)
	}
}

type fixedTrend domain.Trend

func (f fixedTrend) Trend(context.Context, string) (domain.Trend, error) { return domain.Trend(f), nil }

func TestResolve(t *testing.T) {
	data := market.NewStatic()
	reg := NewRegistry(Deps{
		Bars:   feed(data),
		Rand:   rand.New(rand.NewSource(1)),
		Config: config.StrategiesConfig{},
	})
	assert.Equal(t, []string{"ema_cross", "random", "rsi", "stoch_rsi"}, reg.List())

	s, err := Resolve(reg, "rsi", nil)
	require.NoError(t, err)
	assert.Equal(t, "rsi", s.Name())

	s, err = Resolve(reg, "trend:random", fixedTrend(domain.TrendUp))
	require.NoError(t, err)
	assert.Equal(t, "trend:random", s.Name())

	_, err = Resolve(reg, "trend:random", nil)
	assert.Error(t, err)

	_, err = Resolve(reg, "tradingview", nil)
	assert.ErrorContains(t, err, "unknown strategy")
}
