package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"tradebot/internal/domain"
	"tradebot/internal/util"
)

// Compile-time interface checks.
var _ Broker = (*AlpacaBroker)(nil)
var _ ExitPairSubmitter = (*AlpacaBroker)(nil)

// AlpacaBroker implements the Broker interface using the Alpaca brokerage API.
type AlpacaBroker struct {
	client  *alpaca.Client
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewAlpacaBroker creates a new AlpacaBroker configured with the given
// credentials and API endpoint. rateLimitPerMin paces every API call; zero
// disables pacing.
func NewAlpacaBroker(apiKey, apiSecret, baseURL string, rateLimitPerMin int) *AlpacaBroker {
	return &AlpacaBroker{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		limiter: util.NewRateLimiter(rateLimitPerMin),
		log:     slog.Default().With("broker", "alpaca"),
	}
}

// Name returns "alpaca".
func (b *AlpacaBroker) Name() string {
	return "alpaca"
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// ListInstruments returns all active US equities. Tick and lot are left for
// the catalog to fill from configuration.
func (b *AlpacaBroker) ListInstruments(ctx context.Context) ([]domain.Instrument, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	assets, err := b.client.GetAssets(alpaca.GetAssetsRequest{
		Status:     "active",
		AssetClass: "us_equity",
	})
	if err != nil {
		return nil, fmt.Errorf("GetAssets: %w", err)
	}

	out := make([]domain.Instrument, 0, len(assets))
	for _, a := range assets {
		out = append(out, domain.Instrument{
			Ticker:       a.Symbol,
			ID:           a.ID,
			Name:         a.Name,
			Exchange:     string(a.Exchange),
			Lot:          1,
			Tradable:     a.Tradable,
			BuyEnabled:   a.Tradable,
			SellEnabled:  a.Tradable,
			ShortEnabled: a.Tradable && a.Shortable && a.EasyToBorrow,
			Status:       string(a.Status),
		})
	}
	b.log.Info("assets fetched", "count", len(out))
	return out, nil
}

// GetAccount returns the current account information from the Alpaca API.
func (b *AlpacaBroker) GetAccount(ctx context.Context) (*domain.AccountInfo, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	acct, err := b.client.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return &domain.AccountInfo{
		Cash:        acct.Cash,
		HasCash:     true,
		Equity:      acct.Equity,
		BuyingPower: acct.BuyingPower,
	}, nil
}

// GetPositions returns all current positions from the Alpaca account.
func (b *AlpacaBroker) GetPositions(ctx context.Context) ([]domain.Position, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	positions, err := b.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("GetPositions: %w", err)
	}

	out := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		pos := domain.Position{
			Ticker:       p.Symbol,
			InstrumentID: p.AssetID,
			Qty:          p.Qty,
			AvgEntry:     p.AvgEntryPrice,
		}
		if p.CurrentPrice != nil {
			pos.CurrentPrice = *p.CurrentPrice
		}
		out = append(out, pos)
	}
	return out, nil
}

// GetOrder returns an order by Alpaca order ID.
func (b *AlpacaBroker) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	o, err := b.client.GetOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("GetOrder %s: %w", orderID, classifyAlpacaError(err))
	}
	return fromAlpacaOrder(o), nil
}

// GetOrderByClientID returns an order by the client order ID it was
// submitted with.
func (b *AlpacaBroker) GetOrderByClientID(ctx context.Context, clientOrderID string) (*domain.Order, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	o, err := b.client.GetOrderByClientOrderID(clientOrderID)
	if err != nil {
		return nil, fmt.Errorf("GetOrderByClientOrderID %s: %w", clientOrderID, classifyAlpacaError(err))
	}
	return fromAlpacaOrder(o), nil
}

// ListOpenOrders returns all working orders.
func (b *AlpacaBroker) ListOpenOrders(ctx context.Context) ([]domain.Order, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	orders, err := b.client.GetOrders(alpaca.GetOrdersRequest{
		Status: "open",
		Limit:  500,
	})
	if err != nil {
		return nil, fmt.Errorf("GetOrders: %w", err)
	}
	out := make([]domain.Order, 0, len(orders))
	for i := range orders {
		out = append(out, *fromAlpacaOrder(&orders[i]))
	}
	return out, nil
}

// ListActivities returns fills and fee activities in [since, until).
func (b *AlpacaBroker) ListActivities(ctx context.Context, since, until time.Time) ([]domain.Activity, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	acts, err := b.client.GetAccountActivities(alpaca.GetAccountActivitiesRequest{
		ActivityTypes: []string{"FILL", "FEE", "CFEE"},
		After:         since,
		Until:         until,
	})
	if err != nil {
		return nil, fmt.Errorf("GetAccountActivities: %w", err)
	}

	out := make([]domain.Activity, 0, len(acts))
	for _, a := range acts {
		act := domain.Activity{
			ID:              a.ID,
			Ticker:          a.Symbol,
			Qty:             a.Qty,
			Price:           a.Price,
			NetAmount:       a.NetAmount,
			TransactionTime: a.TransactionTime,
		}
		if strings.EqualFold(a.ActivityType, "FILL") {
			act.Kind = domain.ActivityFill
			if strings.HasPrefix(strings.ToLower(a.Side), "sell") {
				act.Side = domain.OrderSideSell
			} else {
				act.Side = domain.OrderSideBuy
			}
		} else {
			act.Kind = domain.ActivityFee
		}
		out = append(out, act)
	}
	return out, nil
}

// SessionDates returns the exchange session dates (YYYY-MM-DD) between
// start and end from the Alpaca trading calendar.
func (b *AlpacaBroker) SessionDates(ctx context.Context, start, end time.Time) ([]string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	calendar, err := b.client.GetCalendar(alpaca.GetCalendarRequest{
		Start: start,
		End:   end,
	})
	if err != nil {
		return nil, fmt.Errorf("GetCalendar: %w", err)
	}
	if len(calendar) == 0 {
		return nil, fmt.Errorf("no trading days returned from calendar")
	}
	dates := make([]string, 0, len(calendar))
	for _, day := range calendar {
		dates = append(dates, day.Date)
	}
	return dates, nil
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// SubmitOrder sends an order to the Alpaca API for execution.
func (b *AlpacaBroker) SubmitOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := toPlaceOrderRequest(order)
	if err != nil {
		return nil, err
	}

	placed, err := b.client.PlaceOrder(req)
	if err != nil {
		b.log.Error("place order failed", "ticker", order.Ticker, "side", order.Side,
			"type", order.Type, "client_order_id", order.ClientOrderID, "error", err)
		return nil, fmt.Errorf("PlaceOrder %s: %w", order.Ticker, classifyAlpacaError(err))
	}

	out := fromAlpacaOrder(placed)
	out.Role = order.Role
	b.log.Info("place order success", "order_id", out.ID, "ticker", out.Ticker,
		"side", out.Side, "type", out.Type, "status", out.Status)
	return out, nil
}

// SubmitExitPair places the take-profit and stop-loss legs as one
// one-cancels-other order, since Alpaca holds the position quantity for the
// first exit order and would reject a second independent one.
func (b *AlpacaBroker) SubmitExitPair(ctx context.Context, takeProfit, stopLoss *domain.Order) (*domain.Order, *domain.Order, error) {
	if takeProfit.LimitPrice == nil || stopLoss.StopPrice == nil {
		return nil, nil, fmt.Errorf("exit pair for %s needs take-profit limit and stop-loss stop prices", takeProfit.Ticker)
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	qty := takeProfit.Qty
	req := alpaca.PlaceOrderRequest{
		Symbol:        takeProfit.Ticker,
		Qty:           &qty,
		Side:          alpaca.Side(takeProfit.Side),
		Type:          alpaca.Limit,
		TimeInForce:   alpaca.GTC,
		LimitPrice:    takeProfit.LimitPrice,
		OrderClass:    alpaca.OCO,
		TakeProfit:    &alpaca.TakeProfit{LimitPrice: takeProfit.LimitPrice},
		StopLoss:      &alpaca.StopLoss{StopPrice: stopLoss.StopPrice},
		ClientOrderID: takeProfit.ClientOrderID,
	}

	placed, err := b.client.PlaceOrder(req)
	if err != nil {
		b.log.Error("place exit pair failed", "ticker", takeProfit.Ticker, "error", err)
		return nil, nil, fmt.Errorf("PlaceOrder OCO %s: %w", takeProfit.Ticker, classifyAlpacaError(err))
	}

	tp, sl := exitPair(placed, stopLoss)
	b.log.Info("place exit pair success", "ticker", tp.Ticker, "take_profit_id", tp.ID, "stop_loss_id", sl.ID)
	return tp, sl, nil
}

// LookupExitPair finds an OCO exit pair by the take-profit client order ID
// and reads the stop leg from the parent's legs.
func (b *AlpacaBroker) LookupExitPair(ctx context.Context, takeProfit, stopLoss *domain.Order) (*domain.Order, *domain.Order, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	placed, err := b.client.GetOrderByClientOrderID(takeProfit.ClientOrderID)
	if err != nil {
		return nil, nil, fmt.Errorf("GetOrderByClientOrderID %s: %w", takeProfit.ClientOrderID, classifyAlpacaError(err))
	}
	tp, sl := exitPair(placed, stopLoss)
	return tp, sl, nil
}

// exitPair splits an OCO parent into its take-profit and stop-loss orders.
// Without a stop leg in the response, the stop-loss request stands in with
// the parent's status.
func exitPair(placed *alpaca.Order, stopLoss *domain.Order) (*domain.Order, *domain.Order) {
	tp := fromAlpacaOrder(placed)
	tp.Role = domain.OrderRoleTakeProfit

	sl := *stopLoss
	sl.Status = tp.Status
	for i := range placed.Legs {
		leg := fromAlpacaOrder(&placed.Legs[i])
		if leg.Type == domain.OrderTypeStop || leg.Type == domain.OrderTypeStopLimit {
			sl = *leg
			break
		}
	}
	sl.Role = domain.OrderRoleStopLoss
	return tp, &sl
}

// CancelOrder requests cancellation of an open order via the Alpaca API.
func (b *AlpacaBroker) CancelOrder(ctx context.Context, orderID string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := b.client.CancelOrder(orderID); err != nil {
		return fmt.Errorf("CancelOrder %s: %w", orderID, classifyAlpacaError(err))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

func toPlaceOrderRequest(o *domain.Order) (alpaca.PlaceOrderRequest, error) {
	qty := o.Qty
	req := alpaca.PlaceOrderRequest{
		Symbol:        o.Ticker,
		Qty:           &qty,
		Side:          alpaca.Side(o.Side),
		ClientOrderID: o.ClientOrderID,
		LimitPrice:    o.LimitPrice,
		StopPrice:     o.StopPrice,
	}

	switch o.Type {
	case domain.OrderTypeMarket:
		req.Type = alpaca.Market
	case domain.OrderTypeLimit:
		req.Type = alpaca.Limit
	case domain.OrderTypeStop:
		req.Type = alpaca.Stop
	case domain.OrderTypeStopLimit:
		req.Type = alpaca.StopLimit
	default:
		return req, fmt.Errorf("unsupported order type %q", o.Type)
	}

	switch o.TimeInForce {
	case domain.TimeInForceGTC:
		req.TimeInForce = alpaca.GTC
	default:
		req.TimeInForce = alpaca.Day
	}
	return req, nil
}

func fromAlpacaOrder(o *alpaca.Order) *domain.Order {
	out := &domain.Order{
		ID:            o.ID,
		ClientOrderID: o.ClientOrderID,
		Ticker:        o.Symbol,
		Side:          domain.OrderSide(o.Side),
		Type:          domain.OrderType(o.Type),
		TimeInForce:   domain.TimeInForce(o.TimeInForce),
		LimitPrice:    o.LimitPrice,
		StopPrice:     o.StopPrice,
		Status:        fromAlpacaStatus(string(o.Status)),
		FilledQty:     o.FilledQty,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.Qty != nil {
		out.Qty = *o.Qty
	}
	if o.FilledAvgPrice != nil {
		out.FilledAvgPrice = *o.FilledAvgPrice
	}
	return out
}

func fromAlpacaStatus(s string) domain.OrderStatus {
	switch s {
	case "filled":
		return domain.OrderStatusFilled
	case "partially_filled":
		return domain.OrderStatusPartiallyFilled
	case "canceled", "replaced":
		return domain.OrderStatusCancelled
	case "rejected":
		return domain.OrderStatusRejected
	case "expired":
		return domain.OrderStatusExpired
	case "new", "pending_new":
		return domain.OrderStatusNew
	default:
		return domain.OrderStatusAccepted
	}
}
