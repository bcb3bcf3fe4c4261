// Package ledger computes capital available for new entries from a fresh
// read of the account and its positions.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
)

// AccountReader reads account cash and positions.
type AccountReader interface {
	GetAccount(ctx context.Context) (*domain.AccountInfo, error)
	GetPositions(ctx context.Context) ([]domain.Position, error)
}

var two = decimal.NewFromInt(2)

// Ledger reads account state. It holds no cached state.
type Ledger struct {
	accounts AccountReader
	now      func() time.Time
}

// New creates a Ledger over accounts.
func New(accounts AccountReader) *Ledger {
	return &Ledger{accounts: accounts, now: time.Now}
}

// Snapshot reads the account and positions.
func (l *Ledger) Snapshot(ctx context.Context) (domain.AccountSnapshot, error) {
	acct, err := l.accounts.GetAccount(ctx)
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("reading account: %w", err)
	}
	positions, err := l.accounts.GetPositions(ctx)
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("reading positions: %w", err)
	}
	return domain.AccountSnapshot{Account: *acct, Positions: positions, TakenAt: l.now()}, nil
}

// FreeCapital returns capital available for a new entry right now.
func (l *Ledger) FreeCapital(ctx context.Context) (decimal.Decimal, error) {
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return FreeCapitalOf(snap), nil
}

// FreeCapitalOf is cash plus twice the (negative) market value of short
// positions, so each short ties up margin of twice its value. An account
// without a cash entry has no free capital.
func FreeCapitalOf(s domain.AccountSnapshot) decimal.Decimal {
	if !s.Account.HasCash {
		return decimal.Zero
	}
	free := s.Account.Cash
	for _, p := range s.Positions {
		if p.IsShort() {
			free = free.Add(two.Mul(p.CurrentPrice.Mul(p.Qty)))
		}
	}
	return free
}
