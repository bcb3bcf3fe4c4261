// Package broker defines the Broker interface and provides implementations
// for executing orders and reading account state at the brokerage.
package broker

import (
	"context"
	"time"

	"tradebot/internal/domain"
)

// Broker abstracts brokerage operations for order execution and account management.
type Broker interface {
	// Name returns the broker identifier (e.g. "alpaca", "simulator").
	Name() string

	// ListInstruments returns every tradable instrument the account can see.
	ListInstruments(ctx context.Context) ([]domain.Instrument, error)

	// GetAccount returns a snapshot of the account's cash metrics.
	GetAccount(ctx context.Context) (*domain.AccountInfo, error)

	// GetPositions returns all current positions held at the brokerage.
	GetPositions(ctx context.Context) ([]domain.Position, error)

	// SubmitOrder sends an order to the brokerage for execution.
	SubmitOrder(ctx context.Context, order *domain.Order) (*domain.Order, error)

	// GetOrder returns the current state of an order by brokerage ID.
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// GetOrderByClientID looks an order up by the engine-assigned client
	// order ID. It returns domain.ErrOrderNotFound when none exists.
	GetOrderByClientID(ctx context.Context, clientOrderID string) (*domain.Order, error)

	// CancelOrder requests cancellation of an open order by its ID.
	CancelOrder(ctx context.Context, orderID string) error

	// ListOpenOrders returns all working orders.
	ListOpenOrders(ctx context.Context) ([]domain.Order, error)

	// ListActivities returns fills and fees in [since, until).
	ListActivities(ctx context.Context, since, until time.Time) ([]domain.Activity, error)
}

// ExitPairSubmitter is implemented by brokers that must receive a
// take-profit and stop-loss pair as one linked submission. Only the
// take-profit's client order ID reaches the broker; the stop leg is
// identified by the broker.
type ExitPairSubmitter interface {
	SubmitExitPair(ctx context.Context, takeProfit, stopLoss *domain.Order) (tp, sl *domain.Order, err error)

	// LookupExitPair returns the pair previously submitted for takeProfit,
	// or domain.ErrOrderNotFound when the broker has none.
	LookupExitPair(ctx context.Context, takeProfit, stopLoss *domain.Order) (tp, sl *domain.Order, err error)
}
