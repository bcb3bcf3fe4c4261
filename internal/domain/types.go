// Package domain defines the core types shared by the trading engine:
// instruments, account state, signals, orders, brackets, and market data.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market identifies the exchange region an instrument trades in.
type Market string

const (
	MarketUS Market = "us"
)

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// Action is the direction a strategy recommends for a ticker.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Signal is a strategy's recommendation to open a position in a ticker.
type Signal struct {
	Ticker string
	Action Action
}

// SignalRecord is a Signal as persisted, tagged with the strategy that
// produced it.
type SignalRecord struct {
	ID         int64
	StrategyID string
	Ticker     string
	Action     Action
	CreatedAt  time.Time
}

// Trend classifies recent price movement of a ticker.
type Trend string

const (
	TrendUp       Trend = "UPTREND"
	TrendDown     Trend = "DOWNTREND"
	TrendSideways Trend = "SIDEWAYS"
)

// Recommendation is the categorical output of an external recommendation
// service.
type Recommendation string

const (
	RecommendationStrongBuy  Recommendation = "STRONG_BUY"
	RecommendationBuy        Recommendation = "BUY"
	RecommendationNeutral    Recommendation = "NEUTRAL"
	RecommendationSell       Recommendation = "SELL"
	RecommendationStrongSell Recommendation = "STRONG_SELL"
	RecommendationError      Recommendation = "ERROR"
)

// ---------------------------------------------------------------------------
// Instruments and account
// ---------------------------------------------------------------------------

// Instrument is a tradable asset as described by the brokerage.
type Instrument struct {
	Ticker       string
	ID           string
	Name         string
	Exchange     string
	Lot          int64
	Tick         decimal.Decimal
	Tradable     bool
	BuyEnabled   bool
	SellEnabled  bool
	ShortEnabled bool
	Status       string
}

// Quantize rounds price to the nearest multiple of the instrument tick.
func (i Instrument) Quantize(price decimal.Decimal) decimal.Decimal {
	if i.Tick.Sign() <= 0 {
		return price
	}
	return price.Div(i.Tick).Round(0).Mul(i.Tick)
}

// LotSize returns the lot as a decimal, treating a non-positive lot as 1.
func (i Instrument) LotSize() decimal.Decimal {
	if i.Lot <= 0 {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(i.Lot)
}

// AccountInfo holds the cash side of the brokerage account. HasCash is
// false when the brokerage reported no cash entry for the account currency.
type AccountInfo struct {
	Cash        decimal.Decimal
	HasCash     bool
	Equity      decimal.Decimal
	BuyingPower decimal.Decimal
}

// Position is a holding in one instrument. Qty is negative for shorts.
type Position struct {
	Ticker       string
	InstrumentID string
	Qty          decimal.Decimal
	CurrentPrice decimal.Decimal
	AvgEntry     decimal.Decimal
}

// IsShort reports whether the position is a short.
func (p Position) IsShort() bool {
	return p.Qty.Sign() < 0
}

// AccountSnapshot is a point-in-time read of the account and its positions.
type AccountSnapshot struct {
	Account   AccountInfo
	Positions []Position
	TakenAt   time.Time
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// OrderSide is buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// TimeInForce is how long an order stays working.
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "gtc"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusAccepted        OrderStatus = "accepted"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
)

// OrderRole marks what part of a bracket an order plays.
type OrderRole string

const (
	OrderRoleEntry      OrderRole = "entry"
	OrderRoleTakeProfit OrderRole = "take_profit"
	OrderRoleStopLoss   OrderRole = "stop_loss"
)

// Order is a single brokerage order. ClientOrderID is assigned by the engine
// and serves as the idempotency key for submission.
type Order struct {
	ID             string
	ClientOrderID  string
	Ticker         string
	Side           OrderSide
	Type           OrderType
	TimeInForce    TimeInForce
	Role           OrderRole
	Qty            decimal.Decimal
	LimitPrice     *decimal.Decimal
	StopPrice      *decimal.Decimal
	Status         OrderStatus
	FilledQty      decimal.Decimal
	FilledAvgPrice decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Terminal reports whether the order can no longer change state.
func (o Order) Terminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// Direction is the side of the position a bracket opens.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// DirectionFor maps a signal action to the position it opens. SELL opens a
// short.
func DirectionFor(a Action) Direction {
	if a == ActionSell {
		return DirectionShort
	}
	return DirectionLong
}

// EntrySide is the order side that opens a position in this direction.
func (d Direction) EntrySide() OrderSide {
	if d == DirectionShort {
		return OrderSideSell
	}
	return OrderSideBuy
}

// ExitSide is the order side that closes a position in this direction.
func (d Direction) ExitSide() OrderSide {
	if d == DirectionShort {
		return OrderSideBuy
	}
	return OrderSideSell
}

// BracketOrder is a filled entry together with its exit legs.
type BracketOrder struct {
	Ticker       string
	Direction    Direction
	Qty          decimal.Decimal
	EntryPrice   decimal.Decimal
	TakeProfit   decimal.Decimal
	StopLoss     decimal.Decimal
	EntryOrderID string
	TakeProfitID string
	StopLossID   string
}

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is an OHLCV candle.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Quote is a top-of-book snapshot.
type Quote struct {
	Symbol    string
	Timestamp time.Time
	BidPrice  float64
	BidSize   int64
	AskPrice  float64
	AskSize   int64
}

// ---------------------------------------------------------------------------
// Account activity and reports
// ---------------------------------------------------------------------------

// ActivityKind distinguishes fills from fee-type cash movements.
type ActivityKind string

const (
	ActivityFill ActivityKind = "fill"
	ActivityFee  ActivityKind = "fee"
)

// Activity is an executed account operation.
type Activity struct {
	ID              string
	Ticker          string
	Kind            ActivityKind
	Side            OrderSide
	Qty             decimal.Decimal
	Price           decimal.Decimal
	NetAmount       decimal.Decimal
	TransactionTime time.Time
}

// Report is the realized result of one trading day.
type Report struct {
	Date          time.Time
	Result        decimal.Decimal
	Commissions   decimal.Decimal
	ResultPercent decimal.Decimal
}
