package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"tradebot/internal/broker"
	"tradebot/internal/catalog"
	"tradebot/internal/domain"
	"tradebot/internal/ledger"
	"tradebot/internal/store"
	"tradebot/internal/util"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func instrument(ticker string) domain.Instrument {
	return domain.Instrument{
		Ticker:       ticker,
		Lot:          1,
		Tick:         dec("0.05"),
		Tradable:     true,
		BuyEnabled:   true,
		SellEnabled:  true,
		ShortEnabled: true,
	}
}

type fixture struct {
	sim  *broker.SimulatorBroker
	exec *Executor
}

func newFixture(t *testing.T, cash string, b func(*broker.SimulatorBroker) broker.Broker, opts ...Option) *fixture {
	t.Helper()
	sim := broker.NewSimulatorBroker()
	sim.SetCash(dec(cash))
	var br broker.Broker = sim
	if b != nil {
		br = b(sim)
	}
	seq := 0
	opts = append([]Option{
		WithRand(rand.New(rand.NewSource(1))),
		WithClientIDs(func() string { seq++; return fmt.Sprintf("cid-%d", seq) }),
		WithSleeper(func(context.Context, time.Duration) error { return nil }),
	}, opts...)
	exec := NewExecutor(br, sim, catalog.New(sim), ledger.New(sim), NewRiskManager(0.01),
		util.Policy{MaxAttempts: 3},
		ExecConfig{TakeProfitPct: 2, StopLossPct: 1, Lots: 10},
		opts...)
	return &fixture{sim: sim, exec: exec}
}

func (f *fixture) add(inst domain.Instrument, price string) {
	f.sim.AddInstrument(inst)
	f.sim.SetPrice(inst.Ticker, dec(price))
}

func TestComputeBracket(t *testing.T) {
	inst := instrument("AAPL")
	tests := []struct {
		name           string
		dir            domain.Direction
		entry          string
		tpPct, slPct   float64
		wantTP, wantSL string
	}{
		{"long", domain.DirectionLong, "100", 2, 1, "102.00", "99.00"},
		{"short", domain.DirectionShort, "100", 2, 1, "98.00", "101.00"},
		{"long off grid", domain.DirectionLong, "100.03", 2, 1, "102.05", "99.05"},
		{"long nudged", domain.DirectionLong, "100", 0.01, 0.01, "100.05", "99.95"},
		{"short nudged", domain.DirectionShort, "100", 0.01, 0.01, "99.95", "100.05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp, sl := ComputeBracket(tt.dir, dec(tt.entry), tt.tpPct, tt.slPct, inst)
			if !tp.Equal(dec(tt.wantTP)) || !sl.Equal(dec(tt.wantSL)) {
				t.Errorf("ComputeBracket = %s/%s, want %s/%s", tp, sl, tt.wantTP, tt.wantSL)
			}
			entry := dec(tt.entry)
			if tt.dir == domain.DirectionLong && !(tp.GreaterThan(entry) && entry.GreaterThan(sl)) {
				t.Errorf("long invariant broken: tp=%s entry=%s sl=%s", tp, entry, sl)
			}
			if tt.dir == domain.DirectionShort && !(tp.LessThan(entry) && entry.LessThan(sl)) {
				t.Errorf("short invariant broken: tp=%s entry=%s sl=%s", tp, entry, sl)
			}
		})
	}
}

func TestRiskManagerCheckCapital(t *testing.T) {
	rm := NewRiskManager(0.01)
	inst := instrument("AAPL")

	if err := rm.CheckCapital(dec("10101"), dec("100"), inst, 100); err != nil {
		t.Fatalf("CheckCapital returned unexpected error: %v", err)
	}
	err := rm.CheckCapital(dec("10100"), dec("100"), inst, 100)
	if !errors.Is(err, domain.ErrInsufficientCapital) {
		t.Fatalf("CheckCapital at the boundary = %v, want ErrInsufficientCapital", err)
	}
}

func TestPlaceBracketLong(t *testing.T) {
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "orders.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	f := newFixture(t, "100000", nil, WithOrderJournal(db))
	f.add(instrument("AAPL"), "100")

	b, err := f.exec.PlaceBracket(context.Background(), domain.Signal{Ticker: "AAPL", Action: domain.ActionBuy})
	if err != nil {
		t.Fatalf("PlaceBracket: %v", err)
	}
	if b.Direction != domain.DirectionLong || !b.Qty.Equal(dec("10")) {
		t.Errorf("bracket = %+v", b)
	}
	if !b.TakeProfit.Equal(dec("102")) || !b.StopLoss.Equal(dec("99")) {
		t.Errorf("levels = %s/%s, want 102/99", b.TakeProfit, b.StopLoss)
	}

	orders := f.sim.Orders()
	if len(orders) != 3 {
		t.Fatalf("broker has %d orders, want 3", len(orders))
	}
	entry, tp, sl := orders[0], orders[1], orders[2]
	if entry.Side != domain.OrderSideBuy || entry.Status != domain.OrderStatusFilled {
		t.Errorf("entry = %+v", entry)
	}
	if tp.Type != domain.OrderTypeLimit || tp.Side != domain.OrderSideSell || tp.TimeInForce != domain.TimeInForceGTC {
		t.Errorf("take profit = %+v", tp)
	}
	if sl.Type != domain.OrderTypeStop || sl.Side != domain.OrderSideSell || !sl.StopPrice.Equal(dec("99")) {
		t.Errorf("stop loss = %+v", sl)
	}

	filled, err := db.ListOrders(context.Background(), domain.OrderStatusFilled)
	if err != nil {
		t.Fatal(err)
	}
	if len(filled) != 1 || filled[0].Role != domain.OrderRoleEntry || filled[0].ClientOrderID != "cid-1" {
		t.Errorf("journaled fills = %+v", filled)
	}
	working, err := db.ListOrders(context.Background(), domain.OrderStatusAccepted)
	if err != nil {
		t.Fatal(err)
	}
	if len(working) != 2 {
		t.Errorf("journaled exits = %d, want 2", len(working))
	}
}

func TestPlaceBracketShort(t *testing.T) {
	f := newFixture(t, "100000", nil)
	f.add(instrument("TSLA"), "100")

	b, err := f.exec.PlaceBracket(context.Background(), domain.Signal{Ticker: "TSLA", Action: domain.ActionSell})
	if err != nil {
		t.Fatalf("PlaceBracket: %v", err)
	}
	if !b.TakeProfit.Equal(dec("98")) || !b.StopLoss.Equal(dec("101")) {
		t.Errorf("levels = %s/%s, want 98/101", b.TakeProfit, b.StopLoss)
	}
	orders := f.sim.Orders()
	if orders[0].Side != domain.OrderSideSell || orders[1].Side != domain.OrderSideBuy || orders[2].Side != domain.OrderSideBuy {
		t.Errorf("sides = %s/%s/%s, want sell/buy/buy", orders[0].Side, orders[1].Side, orders[2].Side)
	}
}

func TestRunCycleInsufficientCapital(t *testing.T) {
	f := newFixture(t, "500", nil)
	f.add(instrument("AAPL"), "100")
	f.add(instrument("MSFT"), "100")

	res, err := f.exec.RunCycle(context.Background(), []domain.Signal{
		{Ticker: "AAPL", Action: domain.ActionBuy},
		{Ticker: "MSFT", Action: domain.ActionBuy},
	})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !res.CapitalExhausted || len(res.Placed) != 0 {
		t.Errorf("result = %+v, want capital exhausted with nothing placed", res)
	}
	if n := len(f.sim.Orders()); n != 0 {
		t.Errorf("broker has %d orders, want 0", n)
	}
}

func TestRunCycleDropsUnavailableSide(t *testing.T) {
	f := newFixture(t, "100000", nil)
	noShort := instrument("GME")
	noShort.ShortEnabled = false
	f.add(noShort, "20")
	f.add(instrument("AAPL"), "100")

	res, err := f.exec.RunCycle(context.Background(), []domain.Signal{
		{Ticker: "GME", Action: domain.ActionSell},
		{Ticker: "AAPL", Action: domain.ActionBuy},
	})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(res.Placed) != 1 || res.Placed[0].Ticker != "AAPL" {
		t.Errorf("placed = %+v, want AAPL", res.Placed)
	}
	if len(res.Dropped) != 1 || res.Dropped[0].Ticker != "GME" {
		t.Errorf("dropped = %+v, want GME", res.Dropped)
	}
}

func TestRunCycleTriesEverySignal(t *testing.T) {
	f := newFixture(t, "1000000", nil)
	var signals []domain.Signal
	for _, tk := range []string{"A", "B", "C", "D", "E"} {
		f.add(instrument(tk), "10")
		signals = append(signals, domain.Signal{Ticker: tk, Action: domain.ActionBuy})
	}

	res, err := f.exec.RunCycle(context.Background(), signals)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	seen := map[string]bool{}
	for _, b := range res.Placed {
		seen[b.Ticker] = true
	}
	if len(seen) != 5 {
		t.Errorf("placed %v, want all five tickers", seen)
	}
}

func TestRunCycleFatalOnPermanentRejection(t *testing.T) {
	f := newFixture(t, "100000", nil)
	f.add(instrument("AAPL"), "100")
	f.add(instrument("MSFT"), "100")
	f.sim.FailNext(broker.OpSubmit, &alpaca.APIError{StatusCode: 400, Message: "bad request"})

	_, err := f.exec.RunCycle(context.Background(), []domain.Signal{
		{Ticker: "AAPL", Action: domain.ActionBuy},
		{Ticker: "MSFT", Action: domain.ActionBuy},
	})
	if err == nil {
		t.Fatal("RunCycle returned nil, want fatal error")
	}
	if n := len(f.sim.Orders()); n != 0 {
		t.Errorf("broker has %d orders after fatal rejection, want 0", n)
	}
}

// unfilled accepts entries but reports them rejected on the first poll.
type unfilled struct {
	broker.Broker
}

func (u unfilled) SubmitOrder(_ context.Context, o *domain.Order) (*domain.Order, error) {
	out := *o
	out.ID = "pending-1"
	out.Status = domain.OrderStatusAccepted
	return &out, nil
}

func (u unfilled) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	return &domain.Order{ID: id, Ticker: "AAPL", Status: domain.OrderStatusRejected}, nil
}

func TestEntryNotFilledIsFatal(t *testing.T) {
	f := newFixture(t, "100000", func(sim *broker.SimulatorBroker) broker.Broker { return unfilled{sim} })
	f.add(instrument("AAPL"), "100")

	_, err := f.exec.RunCycle(context.Background(), []domain.Signal{{Ticker: "AAPL", Action: domain.ActionBuy}})
	if !errors.Is(err, domain.ErrEntryNotFilled) {
		t.Fatalf("RunCycle error = %v, want ErrEntryNotFilled", err)
	}
}

// partial accepts entries and reports them cancelled after 4 shares.
type partial struct {
	broker.Broker
}

func (p partial) SubmitOrder(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	if o.Role != domain.OrderRoleEntry {
		return p.Broker.SubmitOrder(ctx, o)
	}
	out := *o
	out.ID = "pending-1"
	out.Status = domain.OrderStatusAccepted
	return &out, nil
}

func (p partial) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	return &domain.Order{ID: id, Ticker: "AAPL", Status: domain.OrderStatusCancelled,
		Qty: dec("10"), FilledQty: dec("4"), FilledAvgPrice: dec("100")}, nil
}

func TestPartialFillGetsExits(t *testing.T) {
	f := newFixture(t, "100000", func(sim *broker.SimulatorBroker) broker.Broker { return partial{sim} })
	f.add(instrument("AAPL"), "100")

	b, err := f.exec.PlaceBracket(context.Background(), domain.Signal{Ticker: "AAPL", Action: domain.ActionBuy})
	if err != nil {
		t.Fatalf("PlaceBracket: %v", err)
	}
	if !b.Qty.Equal(dec("4")) {
		t.Errorf("bracket qty = %s, want the filled 4", b.Qty)
	}
	exits := f.sim.Orders()
	if len(exits) != 2 {
		t.Fatalf("broker has %d orders, want 2 exits", len(exits))
	}
	for _, o := range exits {
		if !o.Qty.Equal(dec("4")) {
			t.Errorf("%s qty = %s, want 4", o.Role, o.Qty)
		}
	}
}

// working never fills and records cancellations.
type working struct {
	broker.Broker
	cancelled []string
}

func (w *working) SubmitOrder(_ context.Context, o *domain.Order) (*domain.Order, error) {
	out := *o
	out.ID = "pending-1"
	out.Status = domain.OrderStatusAccepted
	return &out, nil
}

func (w *working) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	return &domain.Order{ID: id, Ticker: "AAPL", Status: domain.OrderStatusAccepted}, nil
}

func (w *working) CancelOrder(_ context.Context, id string) error {
	w.cancelled = append(w.cancelled, id)
	return nil
}

func TestShutdownCancelsWorkingEntry(t *testing.T) {
	w := &working{}
	polls := 0
	f := newFixture(t, "100000", func(sim *broker.SimulatorBroker) broker.Broker {
		w.Broker = sim
		return w
	}, WithSleeper(func(context.Context, time.Duration) error {
		polls++
		if polls == 2 {
			return context.Canceled
		}
		return nil
	}))
	f.add(instrument("AAPL"), "100")

	_, err := f.exec.PlaceBracket(context.Background(), domain.Signal{Ticker: "AAPL", Action: domain.ActionBuy})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("PlaceBracket error = %v, want context.Canceled", err)
	}
	if len(w.cancelled) != 1 || w.cancelled[0] != "pending-1" {
		t.Errorf("cancelled = %v, want [pending-1]", w.cancelled)
	}
}

func TestSubmitIsIdempotentAcrossLostAcks(t *testing.T) {
	f := newFixture(t, "100000", nil)
	f.add(instrument("AAPL"), "100")
	f.sim.LoseAcks(1)

	if _, err := f.exec.PlaceBracket(context.Background(), domain.Signal{Ticker: "AAPL", Action: domain.ActionBuy}); err != nil {
		t.Fatalf("PlaceBracket: %v", err)
	}
	entries := 0
	for _, o := range f.sim.Orders() {
		if o.Type == domain.OrderTypeMarket {
			entries++
		}
	}
	if entries != 1 {
		t.Errorf("broker has %d entries, want exactly 1", entries)
	}
	if n := len(f.sim.Orders()); n != 3 {
		t.Errorf("broker has %d orders, want 3", n)
	}
}

func TestSubmitGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, "100000", nil)
	f.add(instrument("AAPL"), "100")
	transient := fmt.Errorf("gateway: %w", domain.ErrTransient)
	f.sim.FailNext(broker.OpSubmit, transient, transient, transient)

	_, err := f.exec.PlaceBracket(context.Background(), domain.Signal{Ticker: "AAPL", Action: domain.ActionBuy})
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("PlaceBracket error = %v, want the transient failure", err)
	}
}

// pairing submits exits as one linked pair the way an OCO order behaves:
// only the take-profit keeps the request's client order ID and the stop leg
// gets a broker-assigned one.
type pairing struct {
	*broker.SimulatorBroker
	mu       sync.Mutex
	pairs    int
	lostAcks int
	legs     map[string]*domain.Order
}

func (p *pairing) SubmitExitPair(ctx context.Context, tp, sl *domain.Order) (*domain.Order, *domain.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pairs++
	a, err := p.SimulatorBroker.SubmitOrder(ctx, tp)
	if err != nil {
		return nil, nil, err
	}
	leg := *sl
	leg.ClientOrderID = fmt.Sprintf("leg-%d", p.pairs)
	b, err := p.SimulatorBroker.SubmitOrder(ctx, &leg)
	if err != nil {
		return nil, nil, err
	}
	if p.legs == nil {
		p.legs = make(map[string]*domain.Order)
	}
	p.legs[tp.ClientOrderID] = b
	if p.lostAcks > 0 {
		p.lostAcks--
		return nil, nil, fmt.Errorf("exit pair response lost: %w", domain.ErrTransient)
	}
	return a, b, nil
}

func (p *pairing) LookupExitPair(ctx context.Context, tp, _ *domain.Order) (*domain.Order, *domain.Order, error) {
	parent, err := p.SimulatorBroker.GetOrderByClientID(ctx, tp.ClientOrderID)
	if err != nil {
		return nil, nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return parent, p.legs[tp.ClientOrderID], nil
}

func TestExitPairSubmitter(t *testing.T) {
	var pb *pairing
	f := newFixture(t, "100000", func(sim *broker.SimulatorBroker) broker.Broker {
		pb = &pairing{SimulatorBroker: sim}
		return broker.WithReadRetry(pb, util.Policy{})
	})
	f.add(instrument("AAPL"), "100")

	b, err := f.exec.PlaceBracket(context.Background(), domain.Signal{Ticker: "AAPL", Action: domain.ActionBuy})
	if err != nil {
		t.Fatalf("PlaceBracket: %v", err)
	}
	if pb.pairs != 1 {
		t.Errorf("exit pairs submitted = %d, want 1", pb.pairs)
	}
	if b.TakeProfitID == "" || b.StopLossID == "" {
		t.Errorf("bracket missing exit IDs: %+v", b)
	}
}

func TestExitPairLostAckIsNotResubmitted(t *testing.T) {
	var pb *pairing
	f := newFixture(t, "100000", func(sim *broker.SimulatorBroker) broker.Broker {
		pb = &pairing{SimulatorBroker: sim, lostAcks: 1}
		return broker.WithReadRetry(pb, util.Policy{})
	})
	f.add(instrument("AAPL"), "100")

	b, err := f.exec.PlaceBracket(context.Background(), domain.Signal{Ticker: "AAPL", Action: domain.ActionBuy})
	if err != nil {
		t.Fatalf("PlaceBracket: %v", err)
	}
	if pb.pairs != 1 {
		t.Errorf("exit pairs submitted = %d, want 1", pb.pairs)
	}
	if n := len(f.sim.Orders()); n != 3 {
		t.Errorf("broker has %d orders, want entry plus two exits", n)
	}
	// cid-1 is the entry, cid-2 the take-profit.
	leg, ok := pb.legs["cid-2"]
	if !ok || b.StopLossID != leg.ID {
		t.Errorf("stop-loss ID = %q, want the broker's stop leg", b.StopLossID)
	}
}

// ---------------------------------------------------------------------------
// Cycle
// ---------------------------------------------------------------------------

type stubStrategy struct {
	signals []domain.Signal
	err     error
}

func (s *stubStrategy) Name() string { return "stub" }
func (s *stubStrategy) ProduceSignals(context.Context, []string) ([]domain.Signal, error) {
	return s.signals, s.err
}

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) SendText(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, text)
	return nil
}

func (r *recorder) joined() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.msgs, "\n")
}

func TestCycleRun(t *testing.T) {
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "cycle.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	f := newFixture(t, "100000", nil)
	f.add(instrument("AAPL"), "100")
	strat := &stubStrategy{signals: []domain.Signal{{Ticker: "AAPL", Action: domain.ActionBuy}}}
	rec := &recorder{}

	c := NewCycle(catalog.New(f.sim), strat, f.exec, db, rec, nil, []string{"AAPL", "NOPE"})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := c.Status().Snapshot()
	if !snap.Healthy || snap.Cycles != 1 || snap.Brackets != 1 || snap.LastOutcome != OutcomeCompleted {
		t.Errorf("status = %+v", snap)
	}
	sigs, err := db.ListSignals(context.Background(), "stub", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sigs) != 1 || sigs[0].Ticker != "AAPL" {
		t.Errorf("journaled signals = %+v", sigs)
	}
	if !strings.Contains(rec.joined(), "BUY AAPL") {
		t.Errorf("notifications = %q", rec.joined())
	}
}

func TestCycleFatal(t *testing.T) {
	f := newFixture(t, "100000", nil)
	f.add(instrument("AAPL"), "100")
	f.sim.FailNext(broker.OpSubmit, &alpaca.APIError{StatusCode: 401, Message: "unauthorized"})
	strat := &stubStrategy{signals: []domain.Signal{{Ticker: "AAPL", Action: domain.ActionBuy}}}
	rec := &recorder{}

	c := NewCycle(catalog.New(f.sim), strat, f.exec, nil, rec, nil, []string{"AAPL"})
	if err := c.Run(context.Background()); err == nil {
		t.Fatal("Run returned nil, want fatal error")
	}
	snap := c.Status().Snapshot()
	if snap.Healthy || snap.LastOutcome != OutcomeFailed || snap.LastError == "" {
		t.Errorf("status = %+v", snap)
	}
	if !strings.Contains(rec.joined(), "Trading stopped") {
		t.Errorf("notifications = %q", rec.joined())
	}
}

func TestCycleCapitalExhausted(t *testing.T) {
	f := newFixture(t, "100", nil)
	f.add(instrument("AAPL"), "100")
	strat := &stubStrategy{signals: []domain.Signal{{Ticker: "AAPL", Action: domain.ActionBuy}}}
	rec := &recorder{}

	c := NewCycle(catalog.New(f.sim), strat, f.exec, nil, rec, nil, []string{"AAPL"})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := c.Status().Snapshot().LastOutcome; got != OutcomeCapitalExhausted {
		t.Errorf("outcome = %q, want %q", got, OutcomeCapitalExhausted)
	}
	if !strings.Contains(rec.joined(), "Not enough free capital") {
		t.Errorf("notifications = %q", rec.joined())
	}
}
