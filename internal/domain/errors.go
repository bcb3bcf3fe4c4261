package domain

import "errors"

var (
	// ErrTickerNotFound is returned when a ticker is absent from the
	// instrument catalog.
	ErrTickerNotFound = errors.New("ticker not found")

	// ErrInsufficientCapital ends the current cycle: free capital does not
	// cover one more entry.
	ErrInsufficientCapital = errors.New("insufficient free capital")

	// ErrPositionSideUnavailable means the requested long or short cannot be
	// opened for the instrument right now.
	ErrPositionSideUnavailable = errors.New("position side unavailable")

	// ErrOrderNotFound is returned by order lookups that miss.
	ErrOrderNotFound = errors.New("order not found")

	// ErrTransient marks remote failures that are safe to retry.
	ErrTransient = errors.New("transient remote failure")

	// ErrEntryNotFilled means an entry order reached a terminal state
	// without filling.
	ErrEntryNotFilled = errors.New("entry order not filled")
)
