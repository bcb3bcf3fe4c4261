// Command collector snapshots the top of book for the configured tickers
// every collector.interval during the session and archives each ticker's
// daily bar after the close.
//
// Usage:
//
//	go run ./cmd/collector
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"tradebot/internal/app"
	"tradebot/internal/catalog"
	"tradebot/internal/collector"
	"tradebot/internal/scheduler"
)

func main() {
	cfg, err := app.LoadConfig(app.ConfigPath())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	env, err := app.Build(cfg)
	if err != nil {
		log.Fatalf("setup: %v", err)
	}
	defer env.Close()
	env.LoadSessions(ctx, time.Now())

	tickers, err := catalog.New(env.Broker).Validate(ctx, cfg.Trading.Tickers)
	if err != nil {
		log.Fatalf("validating tickers: %v", err)
	}

	c := collector.New(env.Data, env.Parquet, env.Calendar, tickers)
	sched := scheduler.New(env.Calendar, cfg.Collector.Interval, c.Run,
		scheduler.WithIdle(c.Idle))

	slog.Info("collector starting", "tickers", tickers, "interval", cfg.Collector.Interval, "data_dir", cfg.Storage.DataDir)
	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("collector stopped: %v", err)
	}
	slog.Info("collector exited")
}
