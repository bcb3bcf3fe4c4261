// Package engine turns strategy signals into bracketed positions: capital
// checks, market entries, and tick-quantized take-profit/stop-loss exits.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradebot/internal/broker"
	"tradebot/internal/domain"
	"tradebot/internal/metrics"
	"tradebot/internal/store"
	"tradebot/internal/util"
)

// PriceSource returns the last traded price of a ticker.
type PriceSource interface {
	LatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// InstrumentSource resolves a ticker to its instrument.
type InstrumentSource interface {
	Instrument(ctx context.Context, ticker string) (domain.Instrument, error)
}

// CapitalSource reports funds available for new positions.
type CapitalSource interface {
	FreeCapital(ctx context.Context) (decimal.Decimal, error)
}

// ExecConfig sizes and prices brackets.
type ExecConfig struct {
	TakeProfitPct    float64
	StopLossPct      float64
	Lots             int64
	FillPollInterval time.Duration
}

// CycleResult summarises one pass over a signal set.
type CycleResult struct {
	Placed           []domain.BracketOrder
	Dropped          []domain.Signal
	CapitalExhausted bool
}

// Executor places bracket orders for signals.
type Executor struct {
	broker      broker.Broker
	prices      PriceSource
	instruments InstrumentSource
	capital     CapitalSource
	risk        *RiskManager
	write       util.Policy
	cfg         ExecConfig

	orders store.OrderStore
	rnd    *rand.Rand
	newID  func() string
	sleep  func(ctx context.Context, d time.Duration) error
	log    *slog.Logger
}

// Option customises an Executor.
type Option func(*Executor)

// WithOrderJournal records every submitted order in s.
func WithOrderJournal(s store.OrderStore) Option {
	return func(e *Executor) { e.orders = s }
}

// WithRand sets the source used to pick the next signal.
func WithRand(r *rand.Rand) Option {
	return func(e *Executor) { e.rnd = r }
}

// WithClientIDs replaces the client order ID generator.
func WithClientIDs(fn func() string) Option {
	return func(e *Executor) { e.newID = fn }
}

// WithSleeper replaces the wait used between fill polls.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = fn }
}

// NewExecutor creates an Executor. Order writes run under write; a nil
// write.Retryable retries only transient failures.
func NewExecutor(
	b broker.Broker,
	prices PriceSource,
	instruments InstrumentSource,
	capital CapitalSource,
	risk *RiskManager,
	write util.Policy,
	cfg ExecConfig,
	opts ...Option,
) *Executor {
	if write.Retryable == nil {
		write.Retryable = broker.IsTransient
	}
	if cfg.Lots <= 0 {
		cfg.Lots = 1
	}
	if cfg.FillPollInterval <= 0 {
		cfg.FillPollInterval = time.Second
	}
	e := &Executor{
		broker:      b,
		prices:      prices,
		instruments: instruments,
		capital:     capital,
		risk:        risk,
		write:       write,
		cfg:         cfg,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		newID:       uuid.NewString,
		sleep:       sleepCtx,
		log:         slog.Default().With("component", "executor"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RunCycle tries signals in random order until they run out or capital is
// exhausted. Side-unavailable signals are dropped; any other failure stops
// the cycle and is returned.
func (e *Executor) RunCycle(ctx context.Context, signals []domain.Signal) (CycleResult, error) {
	var res CycleResult
	remaining := append([]domain.Signal(nil), signals...)
	for len(remaining) > 0 {
		i := e.rnd.Intn(len(remaining))
		sig := remaining[i]
		remaining = append(remaining[:i], remaining[i+1:]...)

		bracket, err := e.PlaceBracket(ctx, sig)
		switch {
		case err == nil:
			res.Placed = append(res.Placed, *bracket)
		case errors.Is(err, domain.ErrInsufficientCapital):
			e.log.Info("capital exhausted, ending cycle", "ticker", sig.Ticker, "reason", err)
			res.CapitalExhausted = true
			return res, nil
		case errors.Is(err, domain.ErrPositionSideUnavailable):
			e.log.Warn("position side unavailable, dropping signal",
				"ticker", sig.Ticker, "action", sig.Action, "reason", err)
			metrics.SignalsDroppedTotal.WithLabelValues("side_unavailable").Inc()
			res.Dropped = append(res.Dropped, sig)
		default:
			return res, fmt.Errorf("placing %s %s: %w", sig.Action, sig.Ticker, err)
		}
	}
	return res, nil
}

// PlaceBracket opens a position for sig with a market order and, once it
// fills, places the take-profit and stop-loss exits.
func (e *Executor) PlaceBracket(ctx context.Context, sig domain.Signal) (*domain.BracketOrder, error) {
	inst, err := e.instruments.Instrument(ctx, sig.Ticker)
	if err != nil {
		return nil, err
	}
	dir := domain.DirectionFor(sig.Action)
	if err := sideAllowed(inst, dir); err != nil {
		return nil, err
	}

	free, err := e.capital.FreeCapital(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading free capital: %w", err)
	}
	metrics.FreeCapital.Set(free.InexactFloat64())
	last, err := e.prices.LatestPrice(ctx, inst.Ticker)
	if err != nil {
		return nil, fmt.Errorf("reading last price of %s: %w", inst.Ticker, err)
	}
	if err := e.risk.CheckCapital(free, last, inst, e.cfg.Lots); err != nil {
		return nil, err
	}

	qty := inst.LotSize().Mul(decimal.NewFromInt(e.cfg.Lots))
	entry, err := e.submit(ctx, &domain.Order{
		ClientOrderID: e.newID(),
		Ticker:        inst.Ticker,
		Side:          dir.EntrySide(),
		Type:          domain.OrderTypeMarket,
		TimeInForce:   domain.TimeInForceDay,
		Role:          domain.OrderRoleEntry,
		Qty:           qty,
	})
	if err != nil {
		return nil, err
	}

	filled, err := e.awaitFill(ctx, entry)
	if err != nil {
		return nil, err
	}
	price := filled.FilledAvgPrice
	if price.Sign() <= 0 {
		price = last
	}
	e.log.Info("entry filled", "ticker", inst.Ticker, "direction", dir, "qty", qty, "price", price)

	tp, sl := ComputeBracket(dir, price, e.cfg.TakeProfitPct, e.cfg.StopLossPct, inst)
	tpOrder, slOrder := e.exitOrders(inst.Ticker, dir, filled.FilledQty, tp, sl)
	if tpOrder.Qty.Sign() <= 0 {
		tpOrder.Qty, slOrder.Qty = qty, qty
	}

	tpPlaced, slPlaced, err := e.submitExits(ctx, tpOrder, slOrder)
	if err != nil {
		return nil, err
	}
	e.log.Info("bracket placed", "ticker", inst.Ticker, "direction", dir,
		"entry", price, "take_profit", tp, "stop_loss", sl)

	return &domain.BracketOrder{
		Ticker:       inst.Ticker,
		Direction:    dir,
		Qty:          tpOrder.Qty,
		EntryPrice:   price,
		TakeProfit:   tp,
		StopLoss:     sl,
		EntryOrderID: filled.ID,
		TakeProfitID: tpPlaced.ID,
		StopLossID:   slPlaced.ID,
	}, nil
}

func sideAllowed(inst domain.Instrument, dir domain.Direction) error {
	if !inst.Tradable {
		return fmt.Errorf("%s is not tradable: %w", inst.Ticker, domain.ErrPositionSideUnavailable)
	}
	switch dir {
	case domain.DirectionLong:
		if !inst.BuyEnabled {
			return fmt.Errorf("long %s disabled: %w", inst.Ticker, domain.ErrPositionSideUnavailable)
		}
	case domain.DirectionShort:
		if !inst.ShortEnabled || !inst.SellEnabled {
			return fmt.Errorf("short %s disabled: %w", inst.Ticker, domain.ErrPositionSideUnavailable)
		}
	}
	return nil
}

// ComputeBracket derives take-profit and stop-loss prices from the entry
// price. Both are rounded to the instrument tick; a level that rounding
// pushes onto or across the entry is moved one tick further out.
func ComputeBracket(dir domain.Direction, entry decimal.Decimal, tpPct, slPct float64, inst domain.Instrument) (tp, sl decimal.Decimal) {
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)
	up := decimal.NewFromFloat(tpPct).Div(hundred)
	down := decimal.NewFromFloat(slPct).Div(hundred)
	tick := inst.Tick

	if dir == domain.DirectionShort {
		tp = inst.Quantize(entry.Mul(one.Sub(up)))
		sl = inst.Quantize(entry.Mul(one.Add(down)))
		for tick.Sign() > 0 && tp.GreaterThanOrEqual(entry) {
			tp = tp.Sub(tick)
		}
		for tick.Sign() > 0 && sl.LessThanOrEqual(entry) {
			sl = sl.Add(tick)
		}
		return tp, sl
	}

	tp = inst.Quantize(entry.Mul(one.Add(up)))
	sl = inst.Quantize(entry.Mul(one.Sub(down)))
	for tick.Sign() > 0 && tp.LessThanOrEqual(entry) {
		tp = tp.Add(tick)
	}
	for tick.Sign() > 0 && sl.GreaterThanOrEqual(entry) {
		sl = sl.Sub(tick)
	}
	return tp, sl
}

func (e *Executor) exitOrders(ticker string, dir domain.Direction, qty, tp, sl decimal.Decimal) (*domain.Order, *domain.Order) {
	tpOrder := &domain.Order{
		ClientOrderID: e.newID(),
		Ticker:        ticker,
		Side:          dir.ExitSide(),
		Type:          domain.OrderTypeLimit,
		TimeInForce:   domain.TimeInForceGTC,
		Role:          domain.OrderRoleTakeProfit,
		Qty:           qty,
		LimitPrice:    &tp,
	}
	slOrder := &domain.Order{
		ClientOrderID: e.newID(),
		Ticker:        ticker,
		Side:          dir.ExitSide(),
		Type:          domain.OrderTypeStop,
		TimeInForce:   domain.TimeInForceGTC,
		Role:          domain.OrderRoleStopLoss,
		Qty:           qty,
		StopPrice:     &sl,
	}
	return tpOrder, slOrder
}

func (e *Executor) submitExits(ctx context.Context, tp, sl *domain.Order) (*domain.Order, *domain.Order, error) {
	pair, ok := broker.ExitPairs(e.broker)
	if !ok {
		tpPlaced, err := e.submit(ctx, tp)
		if err != nil {
			return nil, nil, err
		}
		slPlaced, err := e.submit(ctx, sl)
		if err != nil {
			return nil, nil, err
		}
		return tpPlaced, slPlaced, nil
	}

	var tpPlaced, slPlaced *domain.Order
	attempt := 0
	err := e.write.Do(ctx, "submit exit pair", func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			foundTP, foundSL, err := pair.LookupExitPair(ctx, tp, sl)
			if err == nil {
				e.log.Info("exit pair already accepted", "client_order_id", tp.ClientOrderID,
					"take_profit_id", foundTP.ID, "stop_loss_id", foundSL.ID)
				tpPlaced, slPlaced = foundTP, foundSL
				return nil
			}
			if !errors.Is(err, domain.ErrOrderNotFound) {
				return err
			}
		}
		var err error
		tpPlaced, slPlaced, err = pair.SubmitExitPair(ctx, tp, sl)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("submitting exits for %s: %w", tp.Ticker, err)
	}
	for _, o := range []*domain.Order{tp, sl} {
		metrics.OrdersTotal.WithLabelValues(string(o.Role), string(o.Side)).Inc()
	}
	e.journal(ctx, withClientID(tpPlaced, tp), tp.Role)
	e.journal(ctx, withClientID(slPlaced, sl), sl.Role)
	return tpPlaced, slPlaced, nil
}

// submit places o under the write policy. Before every retry it looks the
// order up by client order ID so an order the broker already accepted is
// never sent twice.
func (e *Executor) submit(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	var placed *domain.Order
	attempt := 0
	err := e.write.Do(ctx, "submit "+string(o.Role), func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			found, err := e.broker.GetOrderByClientID(ctx, o.ClientOrderID)
			if err == nil {
				e.log.Info("order already accepted", "client_order_id", o.ClientOrderID, "id", found.ID)
				placed = found
				return nil
			}
			if !errors.Is(err, domain.ErrOrderNotFound) {
				return err
			}
		}
		p, err := e.broker.SubmitOrder(ctx, o)
		if err != nil {
			return err
		}
		placed = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("submitting %s %s %s: %w", o.Role, o.Side, o.Ticker, err)
	}
	metrics.OrdersTotal.WithLabelValues(string(o.Role), string(o.Side)).Inc()
	e.journal(ctx, withClientID(placed, o), o.Role)
	return placed, nil
}

// withClientID fills in request fields the broker did not echo back.
func withClientID(placed, req *domain.Order) *domain.Order {
	out := *placed
	if out.ClientOrderID == "" {
		out.ClientOrderID = req.ClientOrderID
	}
	if out.TimeInForce == "" {
		out.TimeInForce = req.TimeInForce
	}
	return &out
}

// journal records o in the order store under role. Journal failures are
// logged only.
func (e *Executor) journal(ctx context.Context, o *domain.Order, role domain.OrderRole) {
	if e.orders == nil || o == nil {
		return
	}
	rec := *o
	rec.Role = role
	if err := e.orders.SaveOrder(ctx, &rec); err != nil {
		e.log.Warn("journaling order failed", "client_order_id", rec.ClientOrderID, "error", err)
	}
}

// awaitFill polls the entry until it fills. An entry that ends partially
// filled is returned as is so its filled quantity still gets exits; a
// terminal state with nothing filled is ErrEntryNotFilled. If ctx ends while
// the entry is working, the entry is cancelled.
func (e *Executor) awaitFill(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	cur := o
	for {
		if cur.Status == domain.OrderStatusFilled {
			e.journal(ctx, withClientID(cur, o), domain.OrderRoleEntry)
			return cur, nil
		}
		if cur.Terminal() {
			if cur.FilledQty.Sign() > 0 {
				e.log.Warn("entry partially filled", "ticker", cur.Ticker, "status", cur.Status,
					"filled_qty", cur.FilledQty, "qty", cur.Qty)
				e.journal(ctx, withClientID(cur, o), domain.OrderRoleEntry)
				return cur, nil
			}
			return nil, fmt.Errorf("order %s for %s is %s: %w", cur.ID, cur.Ticker, cur.Status, domain.ErrEntryNotFilled)
		}
		if err := e.sleep(ctx, e.cfg.FillPollInterval); err != nil {
			e.cancelEntry(ctx, cur)
			return nil, err
		}
		next, err := e.broker.GetOrder(ctx, o.ID)
		if err != nil {
			return nil, fmt.Errorf("polling order %s: %w", o.ID, err)
		}
		cur = next
	}
}

// cancelEntry withdraws a working entry after ctx has ended.
func (e *Executor) cancelEntry(ctx context.Context, o *domain.Order) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.broker.CancelOrder(ctx, o.ID); err != nil {
		e.log.Error("cancelling unfilled entry failed", "order_id", o.ID, "ticker", o.Ticker, "error", err)
		return
	}
	e.log.Warn("cancelled unfilled entry", "order_id", o.ID, "ticker", o.Ticker)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
