package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebot/internal/broker"
	"tradebot/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFreeCapitalNoShorts(t *testing.T) {
	snap := domain.AccountSnapshot{
		Account: domain.AccountInfo{Cash: d("1000"), HasCash: true},
		Positions: []domain.Position{
			{Ticker: "AAPL", Qty: d("5"), CurrentPrice: d("100")},
		},
	}
	assert.True(t, FreeCapitalOf(snap).Equal(d("1000")))
}

func TestFreeCapitalWithShort(t *testing.T) {
	snap := domain.AccountSnapshot{
		Account: domain.AccountInfo{Cash: d("1000"), HasCash: true},
		Positions: []domain.Position{
			{Ticker: "AAPL", Qty: d("-2"), CurrentPrice: d("100")},
			{Ticker: "MSFT", Qty: d("3"), CurrentPrice: d("50")},
		},
	}
	// 1000 + 2 * (100 * -2)
	assert.True(t, FreeCapitalOf(snap).Equal(d("600")), FreeCapitalOf(snap).String())
}

func TestFreeCapitalNoCash(t *testing.T) {
	snap := domain.AccountSnapshot{
		Positions: []domain.Position{{Ticker: "AAPL", Qty: d("-1"), CurrentPrice: d("10")}},
	}
	assert.True(t, FreeCapitalOf(snap).IsZero())
}

func TestFreeCapitalMonotoneInShortExposure(t *testing.T) {
	prev := FreeCapitalOf(domain.AccountSnapshot{Account: domain.AccountInfo{Cash: d("5000"), HasCash: true}})
	for qty := int64(1); qty <= 5; qty++ {
		snap := domain.AccountSnapshot{
			Account:   domain.AccountInfo{Cash: d("5000"), HasCash: true},
			Positions: []domain.Position{{Ticker: "X", Qty: decimal.NewFromInt(-qty), CurrentPrice: d("25")}},
		}
		got := FreeCapitalOf(snap)
		assert.True(t, got.LessThan(prev), "short of %d: %s not below %s", qty, got, prev)
		prev = got
	}
}

func TestLedgerReadsFresh(t *testing.T) {
	ctx := context.Background()
	sim := broker.NewSimulatorBroker()
	sim.SetCash(d("1000"))
	l := New(sim)

	free, err := l.FreeCapital(ctx)
	require.NoError(t, err)
	assert.True(t, free.Equal(d("1000")))

	sim.SetPosition("AAPL", d("-1"), d("100"))
	free, err = l.FreeCapital(ctx)
	require.NoError(t, err)
	assert.True(t, free.Equal(d("800")), free.String())
}
