// Package builtins provides the built-in strategy implementations and the
// factory that resolves a configured strategy identifier.
package builtins

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"

	"tradebot/internal/config"
	"tradebot/internal/domain"
	"tradebot/internal/model"
	"tradebot/internal/strategy"
)

// BarSource supplies the candle window a strategy evaluates.
type BarSource interface {
	Bars(ctx context.Context, ticker string) ([]domain.Bar, error)
}

// Recommender returns an external rating for a ticker.
type Recommender interface {
	Recommendation(ctx context.Context, ticker string) (domain.Recommendation, error)
}

// ModelLoader returns the trained bundle for a ticker.
type ModelLoader interface {
	Load(ticker string) (*model.Bundle, error)
}

// Deps are the collaborators built-in strategies read from. A nil field
// leaves the strategies that need it unregistered.
type Deps struct {
	Bars        BarSource
	ModelBars   BarSource
	Recommender Recommender
	Models      ModelLoader
	Rand        *rand.Rand
	Config      config.StrategiesConfig
}

// NewRegistry registers every built-in strategy whose dependencies are
// present.
func NewRegistry(d Deps) *strategy.Registry {
	r := strategy.NewRegistry()
	if d.Bars != nil {
		r.Register(NewRSI(d.Bars, d.Config.RSI))
		r.Register(NewStochRSI(d.Bars, d.Config.StochRSI))
		r.Register(NewEMACross(d.Bars, d.Config.EMACross))
	}
	if d.Recommender != nil {
		r.Register(NewTradingView(d.Recommender))
	}
	if d.Models != nil && d.ModelBars != nil {
		r.Register(NewModel(d.Models, d.ModelBars))
	}
	if d.Rand != nil {
		r.Register(NewRandom(d.Rand))
	}
	return r
}

// TrendPrefix marks an identifier whose inner strategy is trend filtered.
const TrendPrefix = "trend:"

// Resolve looks up id in r. "trend:<inner>" wraps <inner> in a TrendFilter
// backed by trends.
func Resolve(r *strategy.Registry, id string, trends strategy.TrendSource) (strategy.Strategy, error) {
	if inner, ok := strings.CutPrefix(id, TrendPrefix); ok {
		if trends == nil {
			return nil, fmt.Errorf("strategy %q needs a trend source", id)
		}
		s, err := Resolve(r, inner, trends)
		if err != nil {
			return nil, err
		}
		return strategy.NewTrendFilter(s, trends), nil
	}
	s, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %s)", id, strings.Join(r.List(), ", "))
	}
	return s, nil
}

// skip returns the PerTicker error hook for a strategy.
func skip(log *slog.Logger) func(string, error) {
	return func(ticker string, err error) {
		log.Warn("skipping ticker", "ticker", ticker, "error", err)
	}
}

func action(a domain.Action) *domain.Action { return &a }

// ---------------------------------------------------------------------------
// Random baseline
// ---------------------------------------------------------------------------

// Compile-time interface check.
var _ strategy.Strategy = (*Random)(nil)

// Random emits a uniformly chosen BUY or SELL for every ticker.
type Random struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandom creates a Random strategy drawing from rnd.
func NewRandom(rnd *rand.Rand) *Random {
	return &Random{rnd: rnd}
}

// Name returns "random".
func (s *Random) Name() string { return "random" }

// ProduceSignals returns one signal per ticker.
func (s *Random) ProduceSignals(ctx context.Context, tickers []string) ([]domain.Signal, error) {
	return strategy.PerTicker(ctx, tickers, func(context.Context, string) (*domain.Action, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.rnd.Intn(2) == 0 {
			return action(domain.ActionBuy), nil
		}
		return action(domain.ActionSell), nil
	}, func(string, error) {})
}
