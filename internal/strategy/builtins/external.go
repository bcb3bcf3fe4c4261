package builtins

import (
	"context"
	"fmt"
	"log/slog"

	"tradebot/internal/domain"
	"tradebot/internal/model"
	"tradebot/internal/strategy"
)

// Compile-time interface checks.
var (
	_ strategy.Strategy = (*TradingView)(nil)
	_ strategy.Strategy = (*Model)(nil)
)

// TradingView follows the external recommendation service.
type TradingView struct {
	rec Recommender
	log *slog.Logger
}

// NewTradingView creates a recommendation-backed strategy.
func NewTradingView(rec Recommender) *TradingView {
	return &TradingView{rec: rec, log: slog.Default().With("strategy", "tradingview")}
}

// Name returns "tradingview".
func (s *TradingView) Name() string { return "tradingview" }

// ProduceSignals maps each ticker's recommendation to an action.
func (s *TradingView) ProduceSignals(ctx context.Context, tickers []string) ([]domain.Signal, error) {
	return strategy.PerTicker(ctx, tickers, func(ctx context.Context, ticker string) (*domain.Action, error) {
		rec, err := s.rec.Recommendation(ctx, ticker)
		if err != nil {
			return nil, err
		}
		switch rec {
		case domain.RecommendationBuy, domain.RecommendationStrongBuy:
			return action(domain.ActionBuy), nil
		case domain.RecommendationSell, domain.RecommendationStrongSell:
			return action(domain.ActionSell), nil
		}
		s.log.Info("no actionable recommendation", "ticker", ticker, "recommendation", rec)
		return nil, nil
	}, skip(s.log))
}

// Model classifies each ticker's latest bar with its trained bundle.
type Model struct {
	models ModelLoader
	bars   BarSource
	log    *slog.Logger
}

// NewModel creates a model-backed strategy.
func NewModel(models ModelLoader, bars BarSource) *Model {
	return &Model{models: models, bars: bars, log: slog.Default().With("strategy", "model")}
}

// Name returns "model".
func (s *Model) Name() string { return "model" }

// ProduceSignals predicts a class per ticker. Labels other than BUY and
// SELL produce no signal.
func (s *Model) ProduceSignals(ctx context.Context, tickers []string) ([]domain.Signal, error) {
	return strategy.PerTicker(ctx, tickers, s.decide, skip(s.log))
}

func (s *Model) decide(ctx context.Context, ticker string) (*domain.Action, error) {
	bundle, err := s.models.Load(ticker)
	if err != nil {
		return nil, err
	}
	bars, err := s.bars.Bars(ctx, ticker)
	if err != nil {
		return nil, err
	}
	features, err := model.Features(bars)
	if err != nil {
		return nil, fmt.Errorf("features for %s: %w", ticker, err)
	}
	label, err := bundle.Predict(features)
	if err != nil {
		return nil, fmt.Errorf("predicting %s: %w", ticker, err)
	}
	switch domain.Action(label) {
	case domain.ActionBuy:
		return action(domain.ActionBuy), nil
	case domain.ActionSell:
		return action(domain.ActionSell), nil
	}
	s.log.Debug("model predicts no trade", "ticker", ticker, "class", label)
	return nil, nil
}
