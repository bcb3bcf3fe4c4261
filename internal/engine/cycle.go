package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tradebot/internal/domain"
	"tradebot/internal/metrics"
	"tradebot/internal/notify"
	"tradebot/internal/store"
	"tradebot/internal/strategy"
)

// TickerValidator filters configured tickers down to known instruments.
type TickerValidator interface {
	Validate(ctx context.Context, tickers []string) ([]string, error)
}

// Cycle runs one decision cycle: validate tickers, produce signals, journal
// them, and hand them to the executor.
type Cycle struct {
	catalog  TickerValidator
	strategy strategy.Strategy
	exec     *Executor
	signals  store.SignalStore
	notifier notify.TextNotifier
	status   *Status
	tickers  []string
	now      func() time.Time
	log      *slog.Logger
}

// NewCycle wires a Cycle. signals and notifier may be nil.
func NewCycle(
	catalog TickerValidator,
	strat strategy.Strategy,
	exec *Executor,
	signals store.SignalStore,
	notifier notify.TextNotifier,
	status *Status,
	tickers []string,
) *Cycle {
	if status == nil {
		status = NewStatus(strat.Name(), tickers)
	}
	return &Cycle{
		catalog:  catalog,
		strategy: strat,
		exec:     exec,
		signals:  signals,
		notifier: notifier,
		status:   status,
		tickers:  tickers,
		now:      time.Now,
		log:      slog.Default().With("component", "cycle", "strategy", strat.Name()),
	}
}

// Status returns the tracker this cycle reports to.
func (c *Cycle) Status() *Status { return c.status }

// Run executes one cycle. A returned error is fatal for the process.
func (c *Cycle) Run(ctx context.Context) error {
	c.status.begin()
	notify.Send(ctx, c.notifier, fmt.Sprintf("Cycle started (%s)", c.strategy.Name()))

	res, err := c.run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			c.status.finish(OutcomeCancelled, 0)
			return ctx.Err()
		}
		c.log.Error("cycle failed", "error", err)
		metrics.CyclesTotal.WithLabelValues(OutcomeFailed).Inc()
		c.status.fail(err)
		notify.Send(context.WithoutCancel(ctx), c.notifier, "Trading stopped: "+err.Error())
		return err
	}

	outcome := res.outcome
	metrics.CyclesTotal.WithLabelValues(outcome).Inc()
	c.status.finish(outcome, len(res.Placed))
	c.log.Info("cycle finished", "outcome", outcome,
		"placed", len(res.Placed), "dropped", len(res.Dropped))
	return nil
}

type cycleOutcome struct {
	CycleResult
	outcome string
}

func (c *Cycle) run(ctx context.Context) (cycleOutcome, error) {
	tickers, err := c.catalog.Validate(ctx, c.tickers)
	if err != nil {
		return cycleOutcome{}, fmt.Errorf("validating tickers: %w", err)
	}

	signals, err := c.strategy.ProduceSignals(ctx, tickers)
	if err != nil {
		return cycleOutcome{}, fmt.Errorf("producing signals: %w", err)
	}
	if len(signals) == 0 {
		c.log.Info("no signals")
		return cycleOutcome{outcome: OutcomeNoSignals}, nil
	}

	c.record(ctx, signals)
	notify.Send(ctx, c.notifier, "Signals: "+describe(signals))

	res, err := c.exec.RunCycle(ctx, signals)
	if err != nil {
		return cycleOutcome{CycleResult: res}, err
	}
	if res.CapitalExhausted {
		notify.Send(ctx, c.notifier, "Not enough free capital, cycle ended")
		return cycleOutcome{CycleResult: res, outcome: OutcomeCapitalExhausted}, nil
	}
	return cycleOutcome{CycleResult: res, outcome: OutcomeCompleted}, nil
}

func (c *Cycle) record(ctx context.Context, signals []domain.Signal) {
	for _, s := range signals {
		metrics.SignalsTotal.WithLabelValues(c.strategy.Name(), string(s.Action)).Inc()
		if c.signals == nil {
			continue
		}
		rec := &domain.SignalRecord{
			StrategyID: c.strategy.Name(),
			Ticker:     s.Ticker,
			Action:     s.Action,
			CreatedAt:  c.now(),
		}
		if err := c.signals.SaveSignal(ctx, rec); err != nil {
			c.log.Warn("saving signal failed", "ticker", s.Ticker, "error", err)
		}
	}
}

func describe(signals []domain.Signal) string {
	parts := make([]string, len(signals))
	for i, s := range signals {
		parts[i] = string(s.Action) + " " + s.Ticker
	}
	return strings.Join(parts, ", ")
}
