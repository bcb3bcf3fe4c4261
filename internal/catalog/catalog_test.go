package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebot/internal/domain"
)

type countingLister struct {
	insts []domain.Instrument
	calls int
	errs  []error
}

func (l *countingLister) ListInstruments(context.Context) ([]domain.Instrument, error) {
	l.calls++
	if len(l.errs) > 0 {
		err := l.errs[0]
		l.errs = l.errs[1:]
		return nil, err
	}
	return l.insts, nil
}

func newLister() *countingLister {
	return &countingLister{insts: []domain.Instrument{
		{Ticker: "AAPL", ID: "id-aapl"},
		{Ticker: "MSFT", ID: "id-msft", Tick: decimal.RequireFromString("0.05")},
	}}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	l := newLister()
	c := New(l)

	id, err := c.Resolve(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "id-aapl", id)

	again, err := c.Resolve(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	_, err = c.Resolve(ctx, "ZZZZ")
	assert.ErrorIs(t, err, domain.ErrTickerNotFound)

	assert.Equal(t, 1, l.calls, "instrument list fetched once")
}

func TestValidatePreservesOrder(t *testing.T) {
	c := New(newLister())

	got, err := c.Validate(context.Background(), []string{"MSFT", "NOPE", "AAPL", "ALSO_NOPE"})
	require.NoError(t, err)
	assert.Equal(t, []string{"MSFT", "AAPL"}, got)

	empty, err := c.Validate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLoadFailureNotMemoized(t *testing.T) {
	l := newLister()
	l.errs = []error{errors.New("unavailable")}
	c := New(l)

	_, err := c.Resolve(context.Background(), "AAPL")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrTickerNotFound)

	_, err = c.Resolve(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, l.calls)
}

func TestTickAndLotDefaults(t *testing.T) {
	c := New(newLister(),
		WithTicks(func(string) decimal.Decimal { return decimal.RequireFromString("0.01") }),
		WithLots(func(ticker string) int64 {
			if ticker == "AAPL" {
				return 10
			}
			return 0
		}),
	)

	aapl, err := c.Instrument(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, "0.01", aapl.Tick.String())
	assert.Equal(t, int64(10), aapl.Lot)

	msft, err := c.Instrument(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "0.05", msft.Tick.String(), "brokerage tick kept")
}
