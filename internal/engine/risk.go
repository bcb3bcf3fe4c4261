package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
)

// RiskManager enforces the pre-trade capital rule: free capital must exceed
// the entry notional plus a safety buffer.
type RiskManager struct {
	buffer decimal.Decimal
}

// NewRiskManager creates a RiskManager with the given buffer fraction
// (0.01 requires free capital above 101% of the entry notional).
func NewRiskManager(buffer float64) *RiskManager {
	return &RiskManager{buffer: decimal.NewFromFloat(buffer)}
}

// Notional is the cost of lots lots of inst at lastPrice.
func Notional(lastPrice decimal.Decimal, inst domain.Instrument, lots int64) decimal.Decimal {
	return lastPrice.Mul(inst.LotSize()).Mul(decimal.NewFromInt(lots))
}

// CheckCapital returns ErrInsufficientCapital when free is at or below the
// buffered notional of the entry.
func (rm *RiskManager) CheckCapital(free, lastPrice decimal.Decimal, inst domain.Instrument, lots int64) error {
	required := Notional(lastPrice, inst, lots).Mul(decimal.NewFromInt(1).Add(rm.buffer))
	if free.LessThanOrEqual(required) {
		return fmt.Errorf("%s needs more than %s, free %s: %w",
			inst.Ticker, required.StringFixed(2), free.StringFixed(2), domain.ErrInsufficientCapital)
	}
	return nil
}
