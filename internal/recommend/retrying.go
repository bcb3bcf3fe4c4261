package recommend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"tradebot/internal/domain"
	"tradebot/internal/util"
)

// Source returns a rating for a ticker.
type Source interface {
	Recommendation(ctx context.Context, ticker string) (domain.Recommendation, error)
}

// StatusError is a non-2xx scanner response.
type StatusError struct {
	Code   int
	Ticker string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scanner status=%d for %s", e.Code, e.Ticker)
}

// IsTransient reports whether a scanner failure is worth retrying:
// transport errors, throttling, timeouts, and 5xx responses.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests || se.Code == http.StatusRequestTimeout
	}
	return true
}

// Retrying runs scanner lookups under a read policy.
type Retrying struct {
	inner  Source
	policy util.Policy
}

// WithRetry wraps src with policy, classifying failures with IsTransient.
func WithRetry(src Source, policy util.Policy) *Retrying {
	policy.Retryable = IsTransient
	return &Retrying{inner: src, policy: policy}
}

func (r *Retrying) Recommendation(ctx context.Context, ticker string) (domain.Recommendation, error) {
	return util.Call(ctx, r.policy, "recommendation", func(ctx context.Context) (domain.Recommendation, error) {
		return r.inner.Recommendation(ctx, ticker)
	})
}
