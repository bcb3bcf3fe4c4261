// Command trader runs the decision cycle every trading.interval while the
// market is open and serves the status API alongside it.
//
// Usage:
//
//	TRADEBOT_CONFIG=config/tradebot.yaml go run ./cmd/trader
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tradebot/internal/api"
	"tradebot/internal/app"
	"tradebot/internal/catalog"
	"tradebot/internal/config"
	"tradebot/internal/engine"
	"tradebot/internal/indicators"
	"tradebot/internal/ledger"
	"tradebot/internal/market"
	"tradebot/internal/metrics"
	"tradebot/internal/model"
	"tradebot/internal/recommend"
	"tradebot/internal/scheduler"
	"tradebot/internal/strategy"
	"tradebot/internal/strategy/builtins"
)

func main() {
	strategyID := flag.String("strategy", "", "strategy identifier (overrides trading.strategy)")
	once := flag.Bool("once", false, "run a single cycle immediately and exit")
	flag.Parse()

	cfg, err := app.LoadConfig(app.ConfigPath())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *strategyID != "" {
		cfg.Trading.Strategy = *strategyID
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *once); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("trader stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("trader exited")
}

func run(ctx context.Context, cfg *config.Config, once bool) error {
	env, err := app.Build(cfg)
	if err != nil {
		return err
	}
	defer env.Close()
	env.LoadSessions(ctx, time.Now())

	strat, err := buildStrategy(cfg, env)
	if err != nil {
		return err
	}

	cat := catalog.New(env.Broker,
		catalog.WithTicks(cfg.TickFor),
		catalog.WithLots(cfg.LotFor))

	write := cfg.WritePolicy()
	write.OnRetry = metrics.CountRetry
	opts := []engine.Option{engine.WithOrderJournal(env.DB)}
	if cfg.Trading.Seed != 0 {
		opts = append(opts, engine.WithRand(rand.New(rand.NewSource(cfg.Trading.Seed))))
	}
	exec := engine.NewExecutor(env.Broker, env.Prices, cat, ledger.New(env.Broker),
		engine.NewRiskManager(0.01), write,
		engine.ExecConfig{
			TakeProfitPct:    cfg.Trading.TakeProfitPct,
			StopLossPct:      cfg.Trading.StopLossPct,
			Lots:             cfg.Trading.Lots,
			FillPollInterval: cfg.Trading.FillPollInterval,
		}, opts...)

	status := engine.NewStatus(strat.Name(), cfg.Trading.Tickers)
	cycle := engine.NewCycle(cat, strat, exec, env.DB, env.Notifier, status, cfg.Trading.Tickers)

	slog.Info("trader starting",
		"strategy", strat.Name(),
		"tickers", cfg.Trading.Tickers,
		"interval", cfg.Trading.Interval,
		"dry_run", cfg.Trading.DryRun)

	if once {
		return cycle.Run(ctx)
	}

	srv := api.NewServer(api.Options{
		HTTPAddr:   cfg.HTTPAddr(),
		GRPCAddr:   cfg.GRPCAddr(),
		Status:     status,
		Orders:     env.DB,
		Signals:    env.DB,
		Reports:    env.DB,
		OpenOrders: env.Broker,
	})

	sched := scheduler.New(env.Calendar, cfg.Trading.Interval, cycle.Run,
		scheduler.WithIdle(sessionReloader(env)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	return g.Wait()
}

// buildStrategy registers the built-in strategies against the configured
// data sources and resolves trading.strategy.
func buildStrategy(cfg *config.Config, env *app.Env) (strategy.Strategy, error) {
	sc := cfg.Strategies
	barsTF, err := market.ParseTimeframe(sc.Bars.Timeframe)
	if err != nil {
		return nil, err
	}
	modelTF, err := market.ParseTimeframe(sc.Model.Timeframe)
	if err != nil {
		return nil, err
	}
	trendTF, err := market.ParseTimeframe(sc.Trend.Timeframe)
	if err != nil {
		return nil, err
	}

	seed := cfg.Trading.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	reg := builtins.NewRegistry(builtins.Deps{
		Bars:      indicators.NewBarFeed(env.Data, barsTF, sc.Bars.Lookback),
		ModelBars: indicators.NewBarFeed(env.Data, modelTF, sc.Model.Lookback),
		Recommender: recommend.WithRetry(recommend.NewClient(recommend.Options{
			BaseURL:   sc.TradingView.URL,
			Screener:  sc.TradingView.Screener,
			Exchange:  sc.TradingView.Exchange,
			Exchanges: sc.TradingView.Exchanges,
			Interval:  sc.TradingView.Interval,
			Timeout:   sc.TradingView.Timeout,
		}), env.Read),
		Models: model.NewFileStore(cfg.Storage.ModelDir),
		Rand:   rand.New(rand.NewSource(seed)),
		Config: sc,
	})
	trends := indicators.NewTrendService(
		indicators.NewBarFeed(env.Data, trendTF, sc.Trend.Lookback),
		sc.Trend.Fast, sc.Trend.Slow)
	return builtins.Resolve(reg, cfg.Trading.Strategy, trends)
}

// sessionReloader refreshes the exchange calendar once per closed day.
func sessionReloader(env *app.Env) func(ctx context.Context, now time.Time) error {
	var (
		mu   sync.Mutex
		last string
	)
	return func(ctx context.Context, now time.Time) error {
		day := now.In(env.Calendar.Location()).Format("2006-01-02")
		mu.Lock()
		defer mu.Unlock()
		if day != last {
			env.LoadSessions(ctx, now)
			last = day
		}
		return nil
	}
}
