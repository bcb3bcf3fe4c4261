// Package app wires configuration into the broker, market data, stores,
// calendar, and notifier shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"tradebot/internal/broker"
	"tradebot/internal/config"
	"tradebot/internal/domain"
	"tradebot/internal/engine"
	"tradebot/internal/market"
	"tradebot/internal/metrics"
	"tradebot/internal/notify"
	"tradebot/internal/store"
	"tradebot/internal/util"
)

// DefaultConfigPath is read when TRADEBOT_CONFIG is unset.
const DefaultConfigPath = "config/tradebot.yaml"

// ConfigPath returns the configuration file path.
func ConfigPath() string {
	if p := os.Getenv("TRADEBOT_CONFIG"); p != "" {
		return p
	}
	return DefaultConfigPath
}

// LoadConfig loads the configuration and installs the configured logger as
// the slog default.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))
	return cfg, nil
}

// Env holds the shared collaborators of a process.
type Env struct {
	Config *config.Config

	// Broker is the read-retrying broker used by everything.
	Broker broker.Broker
	// Alpaca is nil in dry-run mode; Simulator is nil otherwise.
	Alpaca    *broker.AlpacaBroker
	Simulator *broker.SimulatorBroker

	// Data is the read-retrying market data source.
	Data market.Data
	// Prices serves the last price used to size entries.
	Prices engine.PriceSource
	// Read is the retry policy for remote reads.
	Read util.Policy

	Calendar *util.TradingCalendar
	Notifier notify.TextNotifier
	DB       *store.SQLiteStore
	Parquet  *store.ParquetStore
}

// Build constructs an Env from cfg.
func Build(cfg *config.Config) (*Env, error) {
	cal, err := util.NewTradingCalendar(cfg.Location(), cfg.Trading.SessionStart, cfg.Trading.SessionEnd)
	if err != nil {
		return nil, err
	}
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	read := cfg.ReadPolicy()
	read.OnRetry = metrics.CountRetry

	env := &Env{
		Config:   cfg,
		Calendar: cal,
		Notifier: notify.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID),
		DB:       db,
		Parquet:  store.NewParquetStore(cfg.Storage.DataDir),
		Read:     read,
	}

	var raw broker.Broker
	if cfg.Trading.DryRun {
		sim, err := NewSimulator(cfg)
		if err != nil {
			db.Close()
			return nil, err
		}
		env.Simulator = sim
		raw = sim
	} else {
		env.Alpaca = broker.NewAlpacaBroker(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, cfg.Alpaca.RateLimitPerMin)
		raw = env.Alpaca
	}
	env.Broker = broker.WithReadRetry(raw, read)

	var data market.Data
	if cfg.Alpaca.APIKey != "" && cfg.Alpaca.APISecret != "" {
		data = market.NewAlpaca(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.Feed, cfg.Alpaca.RateLimitPerMin)
	} else {
		static := market.NewStatic()
		for ticker, p := range cfg.Simulator.Prices {
			if d, err := decimal.NewFromString(p); err == nil {
				static.SetPrice(ticker, d)
			}
		}
		data = static
	}
	env.Data = market.WithRetry(data, read)

	// Dry runs fill at simulator prices, so entries are sized from them too.
	if env.Simulator != nil {
		env.Prices = env.Simulator
	} else {
		env.Prices = env.Data
	}

	slog.Info("environment ready",
		"broker", raw.Name(),
		"dry_run", cfg.Trading.DryRun,
		"data_dir", cfg.Storage.DataDir,
		"sqlite", cfg.Storage.SQLitePath)
	return env, nil
}

// NewSimulator seeds an in-memory broker from the simulator section: cash,
// prices, and a fully enabled instrument per configured ticker.
func NewSimulator(cfg *config.Config) (*broker.SimulatorBroker, error) {
	cash, err := decimal.NewFromString(cfg.Simulator.Cash)
	if err != nil {
		return nil, fmt.Errorf("simulator.cash: %w", err)
	}
	sim := broker.NewSimulatorBroker()
	sim.SetCash(cash)

	var errs []error
	for ticker, p := range cfg.Simulator.Prices {
		d, err := decimal.NewFromString(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("simulator.prices[%s]: %w", ticker, err))
			continue
		}
		sim.SetPrice(ticker, d)
	}
	for _, ticker := range cfg.Trading.Tickers {
		sim.AddInstrument(domain.Instrument{
			Ticker:       ticker,
			ID:           "sim-" + ticker,
			Tradable:     true,
			BuyEnabled:   true,
			SellEnabled:  true,
			ShortEnabled: true,
			Status:       "active",
		})
	}
	return sim, errors.Join(errs...)
}

// LoadSessions restricts the calendar to exchange session dates around now
// when a live broker is available. Failures leave the weekday calendar in
// place.
func (e *Env) LoadSessions(ctx context.Context, now time.Time) {
	if e.Alpaca == nil {
		return
	}
	dates, err := e.Alpaca.SessionDates(ctx, now.AddDate(0, 0, -7), now.AddDate(0, 1, 0))
	if err != nil {
		slog.Warn("trading calendar unavailable, using weekdays", "error", err)
		return
	}
	e.Calendar.SetSessions(dates)
	slog.Info("trading calendar loaded", "sessions", len(dates))
}

// Close releases the stores.
func (e *Env) Close() error {
	return e.DB.Close()
}
