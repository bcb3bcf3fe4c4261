package broker

import (
	"context"
	"time"

	"tradebot/internal/domain"
	"tradebot/internal/util"
)

// Compile-time interface check.
var _ Broker = (*Retrying)(nil)

// Retrying wraps a Broker so that every read goes through a retry policy.
// Writes pass straight through: order submission is retried by the caller
// with idempotency checks, never blindly.
type Retrying struct {
	Broker
	policy util.Policy
}

// WithReadRetry wraps b with the given read policy. A policy without a
// classifier retries only errors IsTransient accepts.
func WithReadRetry(b Broker, policy util.Policy) *Retrying {
	if policy.Retryable == nil {
		policy.Retryable = IsTransient
	}
	return &Retrying{Broker: b, policy: policy}
}

// Unwrap returns the wrapped broker.
func (r *Retrying) Unwrap() Broker { return r.Broker }

func (r *Retrying) ListInstruments(ctx context.Context) ([]domain.Instrument, error) {
	return util.Call(ctx, r.policy, "list_instruments", r.Broker.ListInstruments)
}

func (r *Retrying) GetAccount(ctx context.Context) (*domain.AccountInfo, error) {
	return util.Call(ctx, r.policy, "get_account", r.Broker.GetAccount)
}

func (r *Retrying) GetPositions(ctx context.Context) ([]domain.Position, error) {
	return util.Call(ctx, r.policy, "get_positions", r.Broker.GetPositions)
}

func (r *Retrying) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return util.Call(ctx, r.policy, "get_order", func(ctx context.Context) (*domain.Order, error) {
		return r.Broker.GetOrder(ctx, orderID)
	})
}

func (r *Retrying) GetOrderByClientID(ctx context.Context, clientOrderID string) (*domain.Order, error) {
	return util.Call(ctx, r.policy, "get_order_by_client_id", func(ctx context.Context) (*domain.Order, error) {
		return r.Broker.GetOrderByClientID(ctx, clientOrderID)
	})
}

func (r *Retrying) ListOpenOrders(ctx context.Context) ([]domain.Order, error) {
	return util.Call(ctx, r.policy, "list_open_orders", r.Broker.ListOpenOrders)
}

func (r *Retrying) ListActivities(ctx context.Context, since, until time.Time) ([]domain.Activity, error) {
	return util.Call(ctx, r.policy, "list_activities", func(ctx context.Context) ([]domain.Activity, error) {
		return r.Broker.ListActivities(ctx, since, until)
	})
}

// ExitPairs returns b's linked-exit submitter, looking through a Retrying
// wrapper.
func ExitPairs(b Broker) (ExitPairSubmitter, bool) {
	if r, ok := b.(*Retrying); ok {
		b = r.Broker
	}
	ps, ok := b.(ExitPairSubmitter)
	return ps, ok
}
