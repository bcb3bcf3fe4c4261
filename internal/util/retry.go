package util

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Policy describes how a remote call is retried.
//
// MaxAttempts of zero retries until the call succeeds, a non-retryable error
// is returned, or the context is cancelled. A zero BaseDelay retries
// immediately. Delays grow by Multiplier (default 2) up to MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64

	// Retryable classifies errors. Nil treats every error as retryable.
	Retryable func(error) bool

	// OnRetry is called after each failed attempt that will be retried.
	OnRetry func(op string, attempt int, err error)

	Logger *slog.Logger
}

// Do runs fn under the policy. op names the call in logs.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}

	delay := p.BaseDelay
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return err
		}

		log.Warn("remote call failed, retrying", "op", op, "attempt", attempt, "error", err)
		if p.OnRetry != nil {
			p.OnRetry(op, attempt, err)
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * mult)
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Call runs fn under the policy and returns its result.
func Call[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
