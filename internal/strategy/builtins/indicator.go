package builtins

import (
	"context"
	"fmt"
	"log/slog"

	"tradebot/internal/config"
	"tradebot/internal/domain"
	"tradebot/internal/indicators"
	"tradebot/internal/strategy"
)

// Compile-time interface checks.
var (
	_ strategy.Strategy = (*RSI)(nil)
	_ strategy.Strategy = (*StochRSI)(nil)
	_ strategy.Strategy = (*EMACross)(nil)
)

// RSI signals on RSI threshold breaches: above overbought sells, below
// oversold buys.
type RSI struct {
	bars BarSource
	cfg  config.RSIConfig
	log  *slog.Logger
}

// NewRSI creates an RSI strategy.
func NewRSI(bars BarSource, cfg config.RSIConfig) *RSI {
	return &RSI{bars: bars, cfg: cfg, log: slog.Default().With("strategy", "rsi")}
}

// Name returns "rsi".
func (s *RSI) Name() string { return "rsi" }

// ProduceSignals evaluates each ticker's latest RSI.
func (s *RSI) ProduceSignals(ctx context.Context, tickers []string) ([]domain.Signal, error) {
	return strategy.PerTicker(ctx, tickers, s.decide, skip(s.log))
}

func (s *RSI) decide(ctx context.Context, ticker string) (*domain.Action, error) {
	bars, err := s.bars.Bars(ctx, ticker)
	if err != nil {
		return nil, err
	}
	rsi := indicators.RSI(indicators.Closes(bars), s.cfg.Period)
	if len(rsi) == 0 {
		return nil, fmt.Errorf("not enough bars for rsi(%d): %d", s.cfg.Period, len(bars))
	}
	return RSIDecision(rsi[len(rsi)-1], s.cfg.Oversold, s.cfg.Overbought), nil
}

// RSIDecision maps an RSI reading to an action.
func RSIDecision(rsi, oversold, overbought float64) *domain.Action {
	switch {
	case rsi > overbought:
		return action(domain.ActionSell)
	case rsi < oversold:
		return action(domain.ActionBuy)
	}
	return nil
}

// StochRSI signals on K/D crossovers in the extreme zones of the stochastic
// RSI.
type StochRSI struct {
	bars BarSource
	cfg  config.StochRSIConfig
	log  *slog.Logger
}

// NewStochRSI creates a stochastic RSI strategy.
func NewStochRSI(bars BarSource, cfg config.StochRSIConfig) *StochRSI {
	return &StochRSI{bars: bars, cfg: cfg, log: slog.Default().With("strategy", "stoch_rsi")}
}

// Name returns "stoch_rsi".
func (s *StochRSI) Name() string { return "stoch_rsi" }

// ProduceSignals evaluates each ticker's two most recent K/D samples.
func (s *StochRSI) ProduceSignals(ctx context.Context, tickers []string) ([]domain.Signal, error) {
	return strategy.PerTicker(ctx, tickers, s.decide, skip(s.log))
}

func (s *StochRSI) decide(ctx context.Context, ticker string) (*domain.Action, error) {
	bars, err := s.bars.Bars(ctx, ticker)
	if err != nil {
		return nil, err
	}
	k, d := indicators.StochRSI(indicators.Closes(bars), s.cfg.Period, s.cfg.FastK, s.cfg.FastD)
	kPrev, kLast, okK := indicators.LastTwo(k)
	dPrev, dLast, okD := indicators.LastTwo(d)
	if !okK || !okD {
		s.log.Debug("not enough stochastic samples", "ticker", ticker, "bars", len(bars))
		return nil, nil
	}
	return StochRSIDecision(kPrev, dPrev, kLast, dLast, s.cfg.Low, s.cfg.High), nil
}

// StochRSIDecision buys when K crosses above D below low and sells when K
// crosses below D above high.
func StochRSIDecision(kPrev, dPrev, k, d, low, high float64) *domain.Action {
	switch cross := indicators.Cross(kPrev, dPrev, k, d); {
	case cross > 0 && k < low:
		return action(domain.ActionBuy)
	case cross < 0 && k > high:
		return action(domain.ActionSell)
	}
	return nil
}

// EMACross signals when the short EMA crosses the long EMA.
type EMACross struct {
	bars BarSource
	cfg  config.EMACrossConfig
	log  *slog.Logger
}

// NewEMACross creates an EMA crossover strategy.
func NewEMACross(bars BarSource, cfg config.EMACrossConfig) *EMACross {
	return &EMACross{bars: bars, cfg: cfg, log: slog.Default().With("strategy", "ema_cross")}
}

// Name returns "ema_cross".
func (s *EMACross) Name() string { return "ema_cross" }

// ProduceSignals evaluates each ticker's latest EMA pair.
func (s *EMACross) ProduceSignals(ctx context.Context, tickers []string) ([]domain.Signal, error) {
	return strategy.PerTicker(ctx, tickers, s.decide, skip(s.log))
}

func (s *EMACross) decide(ctx context.Context, ticker string) (*domain.Action, error) {
	bars, err := s.bars.Bars(ctx, ticker)
	if err != nil {
		return nil, err
	}
	closes := indicators.Closes(bars)
	sPrev, sLast, okS := indicators.LastTwo(indicators.EMA(closes, s.cfg.Short))
	lPrev, lLast, okL := indicators.LastTwo(indicators.EMA(closes, s.cfg.Long))
	if !okS || !okL {
		return nil, fmt.Errorf("not enough bars for ema(%d,%d): %d", s.cfg.Short, s.cfg.Long, len(bars))
	}
	return EMACrossDecision(sPrev, lPrev, sLast, lLast), nil
}

// EMACrossDecision buys when the short EMA moves above the long one from at
// or below it, and sells on the mirror move.
func EMACrossDecision(shortPrev, longPrev, short, long float64) *domain.Action {
	switch indicators.CrossFrom(shortPrev, longPrev, short, long) {
	case 1:
		return action(domain.ActionBuy)
	case -1:
		return action(domain.ActionSell)
	}
	return nil
}
