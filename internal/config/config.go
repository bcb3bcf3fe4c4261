// Package config loads the trader's YAML configuration, applies .env and
// environment overrides, and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"tradebot/internal/util"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the trading engine.
type Config struct {
	Storage    Storage          `yaml:"storage"`
	Server     Server           `yaml:"server"`
	Alpaca     Alpaca           `yaml:"alpaca"`
	Logging    Logging          `yaml:"logging"`
	Trading    TradingConfig    `yaml:"trading"`
	Strategies StrategiesConfig `yaml:"strategies"`
	Retry      RetryConfig      `yaml:"retry"`
	Telegram   Telegram         `yaml:"telegram"`
	Collector  CollectorConfig  `yaml:"collector"`
	Simulator  SimulatorConfig  `yaml:"simulator"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	ModelDir   string `yaml:"model_dir"`
}

// Server holds network listener configuration for the status surface. A
// negative port disables that listener.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	BaseURL         string `yaml:"base_url"`
	DataURL         string `yaml:"data_url"`
	Feed            string `yaml:"feed"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TradingConfig defines the traded universe, bracket sizing, and schedule.
type TradingConfig struct {
	Tickers          []string          `yaml:"tickers"`
	Strategy         string            `yaml:"strategy"`
	TakeProfitPct    float64           `yaml:"take_profit_pct"`
	StopLossPct      float64           `yaml:"stop_loss_pct"`
	Lots             int64             `yaml:"lots"`
	Interval         time.Duration     `yaml:"interval"`
	Timezone         string            `yaml:"timezone"`
	SessionStart     string            `yaml:"session_start"`
	SessionEnd       string            `yaml:"session_end"`
	DefaultTick      string            `yaml:"default_tick"`
	TickOverrides    map[string]string `yaml:"tick_overrides"`
	LotOverrides     map[string]int64  `yaml:"lot_overrides"`
	FillPollInterval time.Duration     `yaml:"fill_poll_interval"`
	DryRun           bool              `yaml:"dry_run"`
	Seed             int64             `yaml:"seed"`
}

// StrategiesConfig holds per-strategy parameters.
type StrategiesConfig struct {
	Bars        BarsConfig        `yaml:"bars"`
	RSI         RSIConfig         `yaml:"rsi"`
	StochRSI    StochRSIConfig    `yaml:"stoch_rsi"`
	EMACross    EMACrossConfig    `yaml:"ema_cross"`
	Trend       TrendConfig       `yaml:"trend"`
	TradingView TradingViewConfig `yaml:"tradingview"`
	Model       ModelConfig       `yaml:"model"`
}

// BarsConfig selects the candle series indicator strategies read.
type BarsConfig struct {
	Timeframe string        `yaml:"timeframe"`
	Lookback  time.Duration `yaml:"lookback"`
}

// RSIConfig parameterises the RSI threshold strategy.
type RSIConfig struct {
	Period     int     `yaml:"period"`
	Oversold   float64 `yaml:"oversold"`
	Overbought float64 `yaml:"overbought"`
}

// StochRSIConfig parameterises the stochastic RSI crossover strategy.
type StochRSIConfig struct {
	Period int     `yaml:"period"`
	FastK  int     `yaml:"fast_k"`
	FastD  int     `yaml:"fast_d"`
	Low    float64 `yaml:"low"`
	High   float64 `yaml:"high"`
}

// EMACrossConfig parameterises the EMA crossover strategy.
type EMACrossConfig struct {
	Short int `yaml:"short"`
	Long  int `yaml:"long"`
}

// TrendConfig parameterises trend classification.
type TrendConfig struct {
	Fast      int           `yaml:"fast"`
	Slow      int           `yaml:"slow"`
	Timeframe string        `yaml:"timeframe"`
	Lookback  time.Duration `yaml:"lookback"`
}

// TradingViewConfig points at the external recommendation service.
type TradingViewConfig struct {
	URL       string            `yaml:"url"`
	Screener  string            `yaml:"screener"`
	Exchange  string            `yaml:"exchange"`
	Exchanges map[string]string `yaml:"exchanges"`
	Interval  string            `yaml:"interval"`
	Timeout   time.Duration     `yaml:"timeout"`
}

// ModelConfig configures the model-backed strategy.
type ModelConfig struct {
	Timeframe string        `yaml:"timeframe"`
	Lookback  time.Duration `yaml:"lookback"`
}

// RetryConfig holds the read and write retry policies.
type RetryConfig struct {
	Read  RetryPolicy `yaml:"read"`
	Write RetryPolicy `yaml:"write"`
}

// RetryPolicy mirrors util.Policy in configuration form.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// Telegram configures the notification sink.
type Telegram struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// CollectorConfig configures quote snapshot collection.
type CollectorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// SimulatorConfig seeds the in-memory broker used in dry-run mode.
type SimulatorConfig struct {
	Cash   string            `yaml:"cash"`
	Prices map[string]string `yaml:"prices"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies defaults and environment variable overrides, and
// validates the result. A .env file in the working directory is loaded
// first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills unset fields with working values.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "tradebot.db"
	}
	if cfg.Storage.ModelDir == "" {
		cfg.Storage.ModelDir = "models"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 9090
	}
	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "iex"
	}

	t := &cfg.Trading
	if t.Strategy == "" {
		t.Strategy = "rsi"
	}
	if t.Lots <= 0 {
		t.Lots = 1
	}
	if t.Interval <= 0 {
		t.Interval = 5 * time.Minute
	}
	if t.Timezone == "" {
		t.Timezone = "America/New_York"
	}
	if t.SessionStart == "" {
		t.SessionStart = "09:30"
	}
	if t.SessionEnd == "" {
		t.SessionEnd = "16:00"
	}
	if t.DefaultTick == "" {
		t.DefaultTick = "0.01"
	}
	if t.FillPollInterval <= 0 {
		t.FillPollInterval = time.Second
	}

	s := &cfg.Strategies
	if s.Bars.Timeframe == "" {
		s.Bars.Timeframe = "15Min"
	}
	if s.Bars.Lookback <= 0 {
		s.Bars.Lookback = 5 * 24 * time.Hour
	}
	if s.RSI.Period <= 0 {
		s.RSI.Period = 14
	}
	if s.RSI.Oversold == 0 {
		s.RSI.Oversold = 30
	}
	if s.RSI.Overbought == 0 {
		s.RSI.Overbought = 70
	}
	if s.StochRSI.Period <= 0 {
		s.StochRSI.Period = 14
	}
	if s.StochRSI.FastK <= 0 {
		s.StochRSI.FastK = 3
	}
	if s.StochRSI.FastD <= 0 {
		s.StochRSI.FastD = 3
	}
	if s.StochRSI.Low == 0 {
		s.StochRSI.Low = 0.2
	}
	if s.StochRSI.High == 0 {
		s.StochRSI.High = 0.8
	}
	if s.EMACross.Short <= 0 {
		s.EMACross.Short = 9
	}
	if s.EMACross.Long <= 0 {
		s.EMACross.Long = 21
	}
	if s.Trend.Fast <= 0 {
		s.Trend.Fast = 20
	}
	if s.Trend.Slow <= 0 {
		s.Trend.Slow = 50
	}
	if s.Trend.Timeframe == "" {
		s.Trend.Timeframe = "1Hour"
	}
	if s.Trend.Lookback <= 0 {
		s.Trend.Lookback = 20 * 24 * time.Hour
	}
	if s.TradingView.URL == "" {
		s.TradingView.URL = "https://scanner.tradingview.com"
	}
	if s.TradingView.Screener == "" {
		s.TradingView.Screener = "america"
	}
	if s.TradingView.Exchange == "" {
		s.TradingView.Exchange = "NASDAQ"
	}
	if s.TradingView.Timeout <= 0 {
		s.TradingView.Timeout = 15 * time.Second
	}
	if s.Model.Timeframe == "" {
		s.Model.Timeframe = "5Min"
	}
	if s.Model.Lookback <= 0 {
		s.Model.Lookback = 24 * time.Hour
	}

	if cfg.Retry.Read.BaseDelay == 0 {
		cfg.Retry.Read.BaseDelay = 500 * time.Millisecond
	}
	if cfg.Retry.Read.MaxDelay == 0 {
		cfg.Retry.Read.MaxDelay = 30 * time.Second
	}
	if cfg.Retry.Write.MaxAttempts <= 0 {
		cfg.Retry.Write.MaxAttempts = 5
	}
	if cfg.Retry.Write.BaseDelay == 0 {
		cfg.Retry.Write.BaseDelay = time.Second
	}
	if cfg.Retry.Write.MaxDelay == 0 {
		cfg.Retry.Write.MaxDelay = 10 * time.Second
	}

	if cfg.Collector.Interval <= 0 {
		cfg.Collector.Interval = time.Minute
	}
	if cfg.Simulator.Cash == "" {
		cfg.Simulator.Cash = "100000"
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("MODEL_DIR"); v != "" {
		cfg.Storage.ModelDir = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}

	if v := os.Getenv("TRADER_STRATEGY"); v != "" {
		cfg.Trading.Strategy = v
	}
	if v := os.Getenv("TRADER_TICKERS"); v != "" {
		var tickers []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tickers = append(tickers, t)
			}
		}
		cfg.Trading.Tickers = tickers
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Validation and derived values
// ---------------------------------------------------------------------------

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	t := c.Trading
	if len(t.Tickers) == 0 {
		errs = append(errs, errors.New("trading.tickers must not be empty"))
	}
	if t.TakeProfitPct <= 0 {
		errs = append(errs, errors.New("trading.take_profit_pct must be positive"))
	}
	if t.StopLossPct <= 0 || t.StopLossPct >= 100 {
		errs = append(errs, errors.New("trading.stop_loss_pct must be in (0, 100)"))
	}
	if _, err := time.LoadLocation(t.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("trading.timezone: %w", err))
	}
	if _, err := util.ParseClock(t.SessionStart); err != nil {
		errs = append(errs, fmt.Errorf("trading.session_start: %w", err))
	}
	if _, err := util.ParseClock(t.SessionEnd); err != nil {
		errs = append(errs, fmt.Errorf("trading.session_end: %w", err))
	}
	if d, err := decimal.NewFromString(t.DefaultTick); err != nil || d.Sign() <= 0 {
		errs = append(errs, fmt.Errorf("trading.default_tick %q must be a positive decimal", t.DefaultTick))
	}
	for ticker, v := range t.TickOverrides {
		if d, err := decimal.NewFromString(v); err != nil || d.Sign() <= 0 {
			errs = append(errs, fmt.Errorf("trading.tick_overrides[%s] %q must be a positive decimal", ticker, v))
		}
	}
	if _, err := decimal.NewFromString(c.Simulator.Cash); err != nil {
		errs = append(errs, fmt.Errorf("simulator.cash: %w", err))
	}
	if !t.DryRun && (c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "") {
		errs = append(errs, errors.New("alpaca credentials are required unless trading.dry_run is set"))
	}

	return errors.Join(errs...)
}

// Location returns the trading time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Trading.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TickFor returns the price increment for ticker.
func (c *Config) TickFor(ticker string) decimal.Decimal {
	if v, ok := c.Trading.TickOverrides[ticker]; ok {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	d, err := decimal.NewFromString(c.Trading.DefaultTick)
	if err != nil {
		return decimal.New(1, -2)
	}
	return d
}

// LotFor returns the lot size for ticker.
func (c *Config) LotFor(ticker string) int64 {
	if v, ok := c.Trading.LotOverrides[ticker]; ok && v > 0 {
		return v
	}
	return 1
}

// HTTPAddr is the status API listen address; empty when disabled.
func (c *Config) HTTPAddr() string {
	if c.Server.Port < 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GRPCAddr is the health service listen address; empty when disabled.
func (c *Config) GRPCAddr() string {
	if c.Server.GRPCPort < 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}

// ReadPolicy builds the retry policy for remote reads.
func (c *Config) ReadPolicy() util.Policy {
	return util.Policy{
		MaxAttempts: c.Retry.Read.MaxAttempts,
		BaseDelay:   c.Retry.Read.BaseDelay,
		MaxDelay:    c.Retry.Read.MaxDelay,
	}
}

// WritePolicy builds the retry policy for order submission.
func (c *Config) WritePolicy() util.Policy {
	return util.Policy{
		MaxAttempts: c.Retry.Write.MaxAttempts,
		BaseDelay:   c.Retry.Write.BaseDelay,
		MaxDelay:    c.Retry.Write.MaxDelay,
	}
}
