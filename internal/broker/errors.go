package broker

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"tradebot/internal/domain"
)

// IsTransient reports whether err is worth retrying. Engine sentinels,
// context errors, and client-side brokerage rejections are not; everything
// else (network failures, 5xx, throttling) is.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrTransient) {
		return true
	}
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, domain.ErrTickerNotFound),
		errors.Is(err, domain.ErrInsufficientCapital),
		errors.Is(err, domain.ErrPositionSideUnavailable),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrEntryNotFilled):
		return false
	}

	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode >= 500,
			apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode == http.StatusRequestTimeout:
			return true
		default:
			return false
		}
	}
	return true
}

// sideUnavailableHints are fragments of Alpaca rejection messages that mean
// the requested position side cannot be opened.
var sideUnavailableHints = []string{
	"not shortable",
	"cannot be sold short",
	"not tradable",
	"not easy to borrow",
	"asset is not active",
	"short selling",
}

// classifyAlpacaError maps Alpaca API errors onto engine sentinels.
func classifyAlpacaError(err error) error {
	var apiErr *alpaca.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.StatusCode == http.StatusNotFound {
		return errors.Join(domain.ErrOrderNotFound, err)
	}
	if apiErr.StatusCode == http.StatusForbidden || apiErr.StatusCode == http.StatusUnprocessableEntity {
		msg := strings.ToLower(apiErr.Message)
		for _, hint := range sideUnavailableHints {
			if strings.Contains(msg, hint) {
				return errors.Join(domain.ErrPositionSideUnavailable, err)
			}
		}
	}
	return err
}
