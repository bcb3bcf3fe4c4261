package tradebot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8080/"
	c := NewClient(baseURL)

	if c == nil {
		t.Fatal("expected non-nil client")
	}

	if c.baseURL != "http://localhost:8080" {
		t.Errorf("expected trimmed baseURL, got %q", c.baseURL)
	}

	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
}

func TestStatusAndHealth(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/status":
			_, _ = w.Write([]byte(`{"strategy":"trend:rsi","tickers":["AAPL","TSLA"],"healthy":true,"cycles":4,"brackets":2}`))
		case "/healthz":
			if healthy {
				_, _ = w.Write([]byte(`{"status":"ok"}`))
				return
			}
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"stopped"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Strategy != "trend:rsi" || st.Cycles != 4 || len(st.Tickers) != 2 {
		t.Errorf("got %+v", st)
	}

	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}
	healthy = false
	err = c.Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable || apiErr.Message != "stopped" {
		t.Errorf("got %+v", apiErr)
	}
}

func TestReportsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/reports" || r.URL.Query().Get("limit") != "7" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_, _ = w.Write([]byte(`{"data":[{"date":"2024-06-12","result":"28.50","commissions":"-1.50","result_percent":"0.29"}]}`))
	}))
	defer srv.Close()

	reps, err := NewClient(srv.URL).Reports(context.Background(), 7)
	if err != nil {
		t.Fatalf("Reports: %v", err)
	}
	if len(reps) != 1 || reps[0].Result != "28.50" {
		t.Errorf("got %+v", reps)
	}
}

func TestOpenOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/open-orders" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"o-1","client_order_id":"c-1","ticker":"AAPL","role":"take_profit","status":"accepted"}]}`))
	}))
	defer srv.Close()

	orders, err := NewClient(srv.URL).OpenOrders(context.Background())
	if err != nil {
		t.Fatalf("OpenOrders: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != "o-1" || orders[0].Ticker != "AAPL" {
		t.Errorf("got %+v", orders)
	}
}
