// Package store defines storage interfaces for persisting and retrieving
// domain objects such as orders, signals, reports, quotes, and bars.
package store

import (
	"context"
	"errors"
	"time"

	"tradebot/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// QuoteStore persists and retrieves top-of-book snapshots.
type QuoteStore interface {
	// WriteQuotes persists a batch of quotes to storage.
	WriteQuotes(ctx context.Context, quotes []domain.Quote) error

	// ReadQuotes returns quotes for the given symbol within [start, end].
	ReadQuotes(ctx context.Context, symbol string, start, end time.Time) ([]domain.Quote, error)
}

// OrderStore journals orders the engine submits.
type OrderStore interface {
	// SaveOrder inserts or replaces an order, keyed by client order ID.
	SaveOrder(ctx context.Context, order *domain.Order) error

	// GetOrder retrieves a single order by its client order ID.
	GetOrder(ctx context.Context, clientOrderID string) (*domain.Order, error)

	// ListOrders returns all orders matching the given status, oldest first.
	ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)
}

// SignalStore persists and retrieves trading signals.
type SignalStore interface {
	// SaveSignal inserts a new signal into storage and sets its ID.
	SaveSignal(ctx context.Context, signal *domain.SignalRecord) error

	// ListSignals returns the most recent signals for a strategy, up to limit.
	ListSignals(ctx context.Context, strategyID string, limit int) ([]domain.SignalRecord, error)
}

// ReportStore appends daily result reports.
type ReportStore interface {
	// SaveReport appends a report.
	SaveReport(ctx context.Context, report *domain.Report) error

	// ListReports returns the most recent reports, newest first, up to limit.
	ListReports(ctx context.Context, limit int) ([]domain.Report, error)
}
