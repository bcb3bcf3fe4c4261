package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// Fault-injection operation names accepted by FailNext.
const (
	OpInstruments = "instruments"
	OpAccount     = "account"
	OpPositions   = "positions"
	OpSubmit      = "submit"
	OpGetOrder    = "get_order"
	OpLookup      = "lookup"
	OpCancel      = "cancel"
	OpOpenOrders  = "open_orders"
	OpActivities  = "activities"
	OpPrice       = "price"
)

// SimulatorBroker implements the Broker interface for dry runs and tests.
// It tracks cash, positions, and orders in memory without making external
// API calls. Market orders fill immediately at the configured price; every
// other order rests until cancelled.
type SimulatorBroker struct {
	mu          sync.Mutex
	cash        decimal.Decimal
	hasCash     bool
	instruments map[string]domain.Instrument
	prices      map[string]decimal.Decimal
	positions   map[string]*domain.Position
	orders      map[string]*domain.Order
	byClientID  map[string]string
	activities  []domain.Activity
	faults      map[string][]error
	lostAcks    int
	seq         int
	now         func() time.Time
}

// NewSimulatorBroker creates a new SimulatorBroker with no cash, instruments,
// or positions.
func NewSimulatorBroker() *SimulatorBroker {
	return &SimulatorBroker{
		instruments: make(map[string]domain.Instrument),
		prices:      make(map[string]decimal.Decimal),
		positions:   make(map[string]*domain.Position),
		orders:      make(map[string]*domain.Order),
		byClientID:  make(map[string]string),
		faults:      make(map[string][]error),
		now:         time.Now,
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// ---------------------------------------------------------------------------
// Seeding and fault injection
// ---------------------------------------------------------------------------

// SetCash sets the account cash balance.
func (b *SimulatorBroker) SetCash(cash decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cash = cash
	b.hasCash = true
}

// ClearCash removes the cash entry from the account.
func (b *SimulatorBroker) ClearCash() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cash = decimal.Zero
	b.hasCash = false
}

// AddInstrument makes an instrument visible to ListInstruments.
func (b *SimulatorBroker) AddInstrument(inst domain.Instrument) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if inst.ID == "" {
		inst.ID = "sim-" + inst.Ticker
	}
	b.instruments[inst.Ticker] = inst
}

// SetPrice sets the last traded price for a ticker.
func (b *SimulatorBroker) SetPrice(ticker string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[ticker] = price
}

// SetPosition overwrites the position in ticker.
func (b *SimulatorBroker) SetPosition(ticker string, qty, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[ticker] = price
	b.positions[ticker] = &domain.Position{Ticker: ticker, InstrumentID: "sim-" + ticker, Qty: qty, AvgEntry: price}
}

// FailNext queues errors returned by the next calls of op, one per call.
func (b *SimulatorBroker) FailNext(op string, errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[op] = append(b.faults[op], errs...)
}

// LoseAcks makes the next n accepted submissions report a transient error
// after the order has been recorded, as when a response is lost in transit.
func (b *SimulatorBroker) LoseAcks(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lostAcks = n
}

// Orders returns every order the simulator has accepted, oldest first.
func (b *SimulatorBroker) Orders() []domain.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Order, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *SimulatorBroker) fault(op string) error {
	q := b.faults[op]
	if len(q) == 0 {
		return nil
	}
	b.faults[op] = q[1:]
	return q[0]
}

// ---------------------------------------------------------------------------
// Broker implementation
// ---------------------------------------------------------------------------

// ListInstruments returns all seeded instruments sorted by ticker.
func (b *SimulatorBroker) ListInstruments(_ context.Context) ([]domain.Instrument, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fault(OpInstruments); err != nil {
		return nil, err
	}
	out := make([]domain.Instrument, 0, len(b.instruments))
	for _, inst := range b.instruments {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

// GetAccount returns simulated account information.
func (b *SimulatorBroker) GetAccount(_ context.Context) (*domain.AccountInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fault(OpAccount); err != nil {
		return nil, err
	}
	equity := b.cash
	for _, p := range b.positions {
		equity = equity.Add(p.Qty.Mul(b.priceOf(p.Ticker, p.AvgEntry)))
	}
	return &domain.AccountInfo{
		Cash:        b.cash,
		HasCash:     b.hasCash,
		Equity:      equity,
		BuyingPower: b.cash,
	}, nil
}

// GetPositions returns all simulated positions marked at the latest price.
func (b *SimulatorBroker) GetPositions(_ context.Context) ([]domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fault(OpPositions); err != nil {
		return nil, err
	}
	positions := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		if p.Qty.IsZero() {
			continue
		}
		cp := *p
		cp.CurrentPrice = b.priceOf(p.Ticker, p.AvgEntry)
		positions = append(positions, cp)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Ticker < positions[j].Ticker })
	return positions, nil
}

// SubmitOrder records the order and fills market orders immediately.
func (b *SimulatorBroker) SubmitOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fault(OpSubmit); err != nil {
		return nil, err
	}
	if order.ClientOrderID != "" {
		if _, dup := b.byClientID[order.ClientOrderID]; dup {
			return nil, fmt.Errorf("client order id %s must be unique", order.ClientOrderID)
		}
	}
	if inst, ok := b.instruments[order.Ticker]; ok {
		if err := b.checkSide(inst, order); err != nil {
			return nil, err
		}
	}

	b.seq++
	now := b.now()
	placed := *order
	placed.ID = fmt.Sprintf("sim-%06d", b.seq)
	placed.Status = domain.OrderStatusAccepted
	placed.CreatedAt = now
	placed.UpdatedAt = now

	if placed.Type == domain.OrderTypeMarket {
		price, ok := b.prices[placed.Ticker]
		if !ok {
			return nil, fmt.Errorf("no price for %s", placed.Ticker)
		}
		b.fill(&placed, price)
	}

	b.orders[placed.ID] = &placed
	if placed.ClientOrderID != "" {
		b.byClientID[placed.ClientOrderID] = placed.ID
	}

	if b.lostAcks > 0 {
		b.lostAcks--
		return nil, fmt.Errorf("submit %s: response lost: %w", placed.ClientOrderID, domain.ErrTransient)
	}
	out := placed
	return &out, nil
}

// checkSide rejects entries the instrument does not allow.
func (b *SimulatorBroker) checkSide(inst domain.Instrument, o *domain.Order) error {
	if !inst.Tradable {
		return fmt.Errorf("%s is not tradable: %w", inst.Ticker, domain.ErrPositionSideUnavailable)
	}
	if o.Type != domain.OrderTypeMarket {
		return nil
	}
	held := decimal.Zero
	if p, ok := b.positions[o.Ticker]; ok {
		held = p.Qty
	}
	switch o.Side {
	case domain.OrderSideBuy:
		if !inst.BuyEnabled {
			return fmt.Errorf("buy %s: %w", inst.Ticker, domain.ErrPositionSideUnavailable)
		}
	case domain.OrderSideSell:
		if !inst.SellEnabled {
			return fmt.Errorf("sell %s: %w", inst.Ticker, domain.ErrPositionSideUnavailable)
		}
		if held.Sub(o.Qty).Sign() < 0 && !inst.ShortEnabled {
			return fmt.Errorf("short %s: %w", inst.Ticker, domain.ErrPositionSideUnavailable)
		}
	}
	return nil
}

// fill executes o at price, updating cash, position, and activity log.
func (b *SimulatorBroker) fill(o *domain.Order, price decimal.Decimal) {
	o.Status = domain.OrderStatusFilled
	o.FilledQty = o.Qty
	o.FilledAvgPrice = price

	notional := o.Qty.Mul(price)
	p, ok := b.positions[o.Ticker]
	if !ok {
		p = &domain.Position{Ticker: o.Ticker, InstrumentID: "sim-" + o.Ticker}
		b.positions[o.Ticker] = p
	}
	net := notional
	if o.Side == domain.OrderSideBuy {
		b.cash = b.cash.Sub(notional)
		p.Qty = p.Qty.Add(o.Qty)
		net = notional.Neg()
	} else {
		b.cash = b.cash.Add(notional)
		p.Qty = p.Qty.Sub(o.Qty)
	}
	p.AvgEntry = price

	b.activities = append(b.activities, domain.Activity{
		ID:              o.ID,
		Ticker:          o.Ticker,
		Kind:            domain.ActivityFill,
		Side:            o.Side,
		Qty:             o.Qty,
		Price:           price,
		NetAmount:       net,
		TransactionTime: o.UpdatedAt,
	})
}

// GetOrder returns an order by ID.
func (b *SimulatorBroker) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fault(OpGetOrder); err != nil {
		return nil, err
	}
	o, ok := b.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	out := *o
	return &out, nil
}

// GetOrderByClientID returns an order by client order ID.
func (b *SimulatorBroker) GetOrderByClientID(_ context.Context, clientOrderID string) (*domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fault(OpLookup); err != nil {
		return nil, err
	}
	id, ok := b.byClientID[clientOrderID]
	if !ok {
		return nil, fmt.Errorf("client order %s: %w", clientOrderID, domain.ErrOrderNotFound)
	}
	out := *b.orders[id]
	return &out, nil
}

// CancelOrder marks the specified order as cancelled in the in-memory store.
func (b *SimulatorBroker) CancelOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fault(OpCancel); err != nil {
		return err
	}
	o, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	if o.Terminal() {
		return fmt.Errorf("order %s is %s and cannot be cancelled", orderID, o.Status)
	}
	o.Status = domain.OrderStatusCancelled
	o.UpdatedAt = b.now()
	return nil
}

// ListOpenOrders returns orders that are not yet terminal.
func (b *SimulatorBroker) ListOpenOrders(_ context.Context) ([]domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fault(OpOpenOrders); err != nil {
		return nil, err
	}
	var out []domain.Order
	for _, o := range b.orders {
		if !o.Terminal() {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListActivities returns fills recorded in [since, until).
func (b *SimulatorBroker) ListActivities(_ context.Context, since, until time.Time) ([]domain.Activity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fault(OpActivities); err != nil {
		return nil, err
	}
	var out []domain.Activity
	for _, a := range b.activities {
		if !a.TransactionTime.Before(since) && a.TransactionTime.Before(until) {
			out = append(out, a)
		}
	}
	return out, nil
}

// LatestPrice returns the seeded price for ticker, letting the simulator
// stand in for market data in dry runs.
func (b *SimulatorBroker) LatestPrice(_ context.Context, ticker string) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fault(OpPrice); err != nil {
		return decimal.Zero, err
	}
	p, ok := b.prices[ticker]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for %s", ticker)
	}
	return p, nil
}

func (b *SimulatorBroker) priceOf(ticker string, fallback decimal.Decimal) decimal.Decimal {
	if p, ok := b.prices[ticker]; ok {
		return p
	}
	return fallback
}
