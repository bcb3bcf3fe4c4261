// Package recommend queries an external technical-rating service (the
// TradingView scanner API) for a categorical recommendation per ticker.
package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"tradebot/internal/domain"
)

// Client talks to the scanner endpoint.
type Client struct {
	baseURL    string
	screener   string
	exchange   string
	exchanges  map[string]string
	interval   string
	httpClient *http.Client
	log        *slog.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	Screener string
	// Exchange prefixes tickers ("NASDAQ:AAPL") unless Exchanges overrides
	// it for a ticker.
	Exchange  string
	Exchanges map[string]string
	// Interval selects the rating timeframe: "" or "1d" for daily, or one of
	// 1m, 5m, 15m, 30m, 1h, 2h, 4h, 1W, 1M.
	Interval string
	Timeout  time.Duration
}

// NewClient creates a scanner client.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		screener:   opts.Screener,
		exchange:   opts.Exchange,
		exchanges:  opts.Exchanges,
		interval:   opts.Interval,
		httpClient: &http.Client{Timeout: timeout},
		log:        slog.Default().With("component", "recommend"),
	}
}

// intervalSuffix maps an interval to the scanner column suffix.
var intervalSuffix = map[string]string{
	"":    "",
	"1d":  "",
	"1m":  "|1",
	"5m":  "|5",
	"15m": "|15",
	"30m": "|30",
	"1h":  "|60",
	"2h":  "|120",
	"4h":  "|240",
	"1W":  "|1W",
	"1M":  "|1M",
}

func (c *Client) column() string {
	return "Recommend.All" + intervalSuffix[c.interval]
}

func (c *Client) symbol(ticker string) string {
	ex := c.exchange
	if v, ok := c.exchanges[ticker]; ok {
		ex = v
	}
	if ex == "" {
		return ticker
	}
	return ex + ":" + ticker
}

// Recommendation returns the current rating for ticker. A response without
// a usable score yields RecommendationError and a nil error; transport and
// HTTP failures are returned as errors.
func (c *Client) Recommendation(ctx context.Context, ticker string) (domain.Recommendation, error) {
	payload := map[string]any{
		"symbols": map[string]any{
			"tickers": []string{c.symbol(ticker)},
			"query":   map[string]any{"types": []string{}},
		},
		"columns": []string{c.column()},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.RecommendationError, err
	}

	url := fmt.Sprintf("%s/%s/scan", c.baseURL, c.screener)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.RecommendationError, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.RecommendationError, fmt.Errorf("scanner request for %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.RecommendationError, fmt.Errorf("reading scanner response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return domain.RecommendationError, &StatusError{Code: resp.StatusCode, Ticker: ticker}
	}

	score := gjson.GetBytes(raw, "data.0.d.0")
	if !score.Exists() || score.Type != gjson.Number {
		c.log.Warn("no rating in scanner response", "ticker", ticker, "symbol", c.symbol(ticker))
		return domain.RecommendationError, nil
	}
	return FromScore(score.Float()), nil
}

// FromScore maps a composite rating in [-1, 1] to a recommendation.
func FromScore(v float64) domain.Recommendation {
	switch {
	case v < -1 || v > 1:
		return domain.RecommendationError
	case v < -0.5:
		return domain.RecommendationStrongSell
	case v < -0.1:
		return domain.RecommendationSell
	case v <= 0.1:
		return domain.RecommendationNeutral
	case v <= 0.5:
		return domain.RecommendationBuy
	default:
		return domain.RecommendationStrongBuy
	}
}
