// Package strategy defines the Strategy interface for signal producers and
// provides a Registry for looking them up by identifier.
package strategy

import (
	"context"
	"sort"

	"tradebot/internal/domain"
)

// Strategy is the interface that all signal producers must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// ProduceSignals returns zero or more signals for the given tickers, in
	// input order. A failure for one ticker is logged and skips that ticker
	// only; the returned error is reserved for context cancellation.
	ProduceSignals(ctx context.Context, tickers []string) ([]domain.Signal, error)
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PerTicker adapts a single-ticker decision function into ProduceSignals
// semantics: tickers are visited in order, errors are passed to onErr and
// skipped, and a nil action means no signal.
func PerTicker(ctx context.Context, tickers []string,
	decide func(ctx context.Context, ticker string) (*domain.Action, error),
	onErr func(ticker string, err error),
) ([]domain.Signal, error) {
	signals := make([]domain.Signal, 0, len(tickers))
	for _, t := range tickers {
		if err := ctx.Err(); err != nil {
			return signals, err
		}
		action, err := decide(ctx, t)
		if err != nil {
			if ctx.Err() != nil {
				return signals, ctx.Err()
			}
			onErr(t, err)
			continue
		}
		if action != nil {
			signals = append(signals, domain.Signal{Ticker: t, Action: *action})
		}
	}
	return signals, nil
}
