// One-shot tool: compute today's realized trading result from account
// activities, append it to the reports table, and send it to Telegram.
//
// Usage:
//
//	go run ./cmd/report
package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"tradebot/internal/app"
	"tradebot/internal/ledger"
	"tradebot/internal/report"
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

	b := report.NewBuilder(env.Broker, ledger.New(env.Broker), env.DB, env.Notifier, cfg.Location())
	r, err := b.Daily(ctx)
	if err != nil {
		log.Fatalf("daily report: %v", err)
	}
	slog.Info("daily report complete", "result", r.Result.StringFixed(2), "percent", r.ResultPercent.StringFixed(2))
}
