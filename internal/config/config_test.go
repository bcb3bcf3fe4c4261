package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "tradebot-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}
	return tmpFile.Name()
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ALPACA_API_KEY", "ALPACA_API_SECRET", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
		"DATA_DIR", "TRADER_STRATEGY", "TRADER_TICKERS", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/tradebot/data"
  sqlite_path: "/tmp/tradebot/tradebot.db"
server:
  host: "0.0.0.0"
  port: 8080
  grpc_port: 9090
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  base_url: "https://paper-api.alpaca.markets"
logging:
  level: "info"
  format: "json"
trading:
  tickers: [AAPL, MSFT]
  strategy: "trend:rsi"
  take_profit_pct: 2
  stop_loss_pct: 1
  interval: 5m
  session_start: "09:45"
  session_end: "15:45"
  tick_overrides:
    AAPL: "0.05"
retry:
  read:
    base_delay: 0s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/tradebot/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/tradebot/data")
	}
	if cfg.Storage.ModelDir != "models" {
		t.Errorf("Storage.ModelDir = %q, want default %q", cfg.Storage.ModelDir, "models")
	}

	// -- Server --
	if cfg.Server.Port != 8080 || cfg.Server.GRPCPort != 9090 {
		t.Errorf("Server ports = %d/%d, want 8080/9090", cfg.Server.Port, cfg.Server.GRPCPort)
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "test-key")
	}
	if cfg.Alpaca.Feed != "iex" {
		t.Errorf("Alpaca.Feed = %q, want default %q", cfg.Alpaca.Feed, "iex")
	}

	// -- Trading --
	if got := strings.Join(cfg.Trading.Tickers, ","); got != "AAPL,MSFT" {
		t.Errorf("Trading.Tickers = %s, want AAPL,MSFT", got)
	}
	if cfg.Trading.Strategy != "trend:rsi" {
		t.Errorf("Trading.Strategy = %q, want %q", cfg.Trading.Strategy, "trend:rsi")
	}
	if cfg.Trading.Interval != 5*time.Minute {
		t.Errorf("Trading.Interval = %v, want 5m", cfg.Trading.Interval)
	}
	if cfg.Trading.Lots != 1 {
		t.Errorf("Trading.Lots = %d, want default 1", cfg.Trading.Lots)
	}
	if got := cfg.TickFor("AAPL").String(); got != "0.05" {
		t.Errorf("TickFor(AAPL) = %s, want 0.05", got)
	}
	if got := cfg.TickFor("MSFT").String(); got != "0.01" {
		t.Errorf("TickFor(MSFT) = %s, want 0.01", got)
	}

	// -- Strategies --
	if cfg.Strategies.RSI.Period != 14 || cfg.Strategies.RSI.Overbought != 70 {
		t.Errorf("RSI defaults = %+v", cfg.Strategies.RSI)
	}
	if cfg.Strategies.StochRSI.Low != 0.2 || cfg.Strategies.StochRSI.High != 0.8 {
		t.Errorf("StochRSI defaults = %+v", cfg.Strategies.StochRSI)
	}

	// -- Retry --
	if cfg.Retry.Write.MaxAttempts != 5 {
		t.Errorf("Retry.Write.MaxAttempts = %d, want 5", cfg.Retry.Write.MaxAttempts)
	}
	if cfg.ReadPolicy().MaxAttempts != 0 {
		t.Error("read policy should retry without limit")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
trading:
  tickers: [AAPL]
  take_profit_pct: 2
  stop_loss_pct: 1
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("TRADER_TICKERS", "TSLA, NVDA")
	t.Setenv("TRADER_STRATEGY", "random")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if got := strings.Join(cfg.Trading.Tickers, ","); got != "TSLA,NVDA" {
		t.Errorf("Trading.Tickers = %s, want TSLA,NVDA", got)
	}
	if cfg.Trading.Strategy != "random" {
		t.Errorf("Trading.Strategy = %q, want random", cfg.Trading.Strategy)
	}
}

func TestLoadValidation(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
trading:
  take_profit_pct: -1
  stop_loss_pct: 150
  session_start: "25:00"
  default_tick: "abc"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() should fail validation")
	}
	msg := err.Error()
	for _, want := range []string{"tickers", "take_profit_pct", "stop_loss_pct", "session_start", "default_tick", "alpaca credentials"} {
		if !strings.Contains(msg, want) {
			t.Errorf("validation error missing %q: %v", want, msg)
		}
	}
}

func TestLoadDryRunNeedsNoCredentials(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
trading:
  tickers: [AAPL]
  take_profit_pct: 2
  stop_loss_pct: 1
  dry_run: true
`)
	if _, err := Load(path); err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
}

func TestListenAddrs(t *testing.T) {
	cfg := &Config{Server: Server{Host: "127.0.0.1", Port: 8080, GRPCPort: -1}}
	if got := cfg.HTTPAddr(); got != "127.0.0.1:8080" {
		t.Errorf("HTTPAddr = %q, want 127.0.0.1:8080", got)
	}
	if got := cfg.GRPCAddr(); got != "" {
		t.Errorf("GRPCAddr = %q, want disabled", got)
	}
}
