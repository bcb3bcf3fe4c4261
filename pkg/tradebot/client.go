// Package tradebot is a Go client for the trader's status API.
package tradebot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Status mirrors GET /status.
type Status struct {
	Strategy    string    `json:"strategy"`
	Tickers     []string  `json:"tickers"`
	Running     bool      `json:"running"`
	Healthy     bool      `json:"healthy"`
	Cycles      int       `json:"cycles"`
	Brackets    int       `json:"brackets"`
	LastCycleAt time.Time `json:"last_cycle_at"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Order mirrors an entry of GET /api/v1/orders.
type Order struct {
	ID             string    `json:"id"`
	ClientOrderID  string    `json:"client_order_id"`
	Ticker         string    `json:"ticker"`
	Side           string    `json:"side"`
	Type           string    `json:"type"`
	TimeInForce    string    `json:"time_in_force,omitempty"`
	Role           string    `json:"role,omitempty"`
	Qty            string    `json:"qty"`
	LimitPrice     string    `json:"limit_price,omitempty"`
	StopPrice      string    `json:"stop_price,omitempty"`
	Status         string    `json:"status"`
	FilledQty      string    `json:"filled_qty"`
	FilledAvgPrice string    `json:"filled_avg_price"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Signal mirrors an entry of GET /api/v1/signals.
type Signal struct {
	ID         int64     `json:"id"`
	StrategyID string    `json:"strategy"`
	Ticker     string    `json:"ticker"`
	Action     string    `json:"action"`
	CreatedAt  time.Time `json:"created_at"`
}

// Report mirrors an entry of GET /api/v1/reports.
type Report struct {
	Date          string `json:"date"`
	Result        string `json:"result"`
	Commissions   string `json:"commissions"`
	ResultPercent string `json:"result_percent"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tradebot api: %d %s", e.StatusCode, e.Message)
}

// Client provides a Go SDK for the trader's status API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Health returns nil when the trader reports itself healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil, nil)
}

// Status returns the engine's progress.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.get(ctx, "/status", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Orders lists journaled orders in the given status ("" for filled).
func (c *Client) Orders(ctx context.Context, status string) ([]Order, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	var out struct {
		Data []Order `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/orders", q, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// OpenOrders lists orders still working at the broker.
func (c *Client) OpenOrders(ctx context.Context) ([]Order, error) {
	var out struct {
		Data []Order `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/open-orders", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Signals lists recent signals of strategy ("" for the running one).
func (c *Client) Signals(ctx context.Context, strategy string, limit int) ([]Signal, error) {
	q := url.Values{}
	if strategy != "" {
		q.Set("strategy", strategy)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Data []Signal `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/signals", q, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Reports lists daily reports, newest first.
func (c *Client) Reports(ctx context.Context, limit int) ([]Report, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Data []Report `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/reports", q, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error  string `json:"error"`
			Status string `json:"status"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil {
			if e.Error != "" {
				msg = e.Error
			} else if e.Status != "" {
				msg = e.Status
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
