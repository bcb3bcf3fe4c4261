package market

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
	"tradebot/internal/util"
)

// Compile-time interface check.
var _ Data = (*Alpaca)(nil)

// Alpaca reads bars, trades, and quotes from the Alpaca market-data API.
type Alpaca struct {
	client  *marketdata.Client
	feed    marketdata.Feed
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewAlpaca creates an Alpaca market-data reader. feed is "iex" or "sip".
func NewAlpaca(apiKey, apiSecret, dataURL, feed string, rateLimitPerMin int) *Alpaca {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &Alpaca{
		client:  marketdata.NewClient(opts),
		feed:    parseFeed(feed),
		limiter: util.NewRateLimiter(rateLimitPerMin),
		log:     slog.Default().With("market", "alpaca"),
	}
}

func parseFeed(feed string) marketdata.Feed {
	switch feed {
	case "sip":
		return marketdata.SIP
	default:
		return marketdata.IEX
	}
}

func alpacaTimeFrame(tf Timeframe) marketdata.TimeFrame {
	switch tf.Unit {
	case "Hour":
		return marketdata.NewTimeFrame(tf.N, marketdata.Hour)
	case "Day":
		return marketdata.NewTimeFrame(tf.N, marketdata.Day)
	default:
		return marketdata.NewTimeFrame(tf.N, marketdata.Min)
	}
}

// Bars returns candles for ticker in [start, end].
func (a *Alpaca) Bars(ctx context.Context, ticker string, tf Timeframe, start, end time.Time) ([]domain.Bar, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	bars, err := a.client.GetBars(ticker, marketdata.GetBarsRequest{
		TimeFrame: alpacaTimeFrame(tf),
		Start:     start,
		End:       end,
		Feed:      a.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", ticker, err)
	}

	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		out = append(out, domain.Bar{
			Symbol:     ticker,
			Timestamp:  b.Timestamp,
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     int64(b.Volume),
			TradeCount: int64(b.TradeCount),
			VWAP:       b.VWAP,
		})
	}
	a.log.Debug("bars fetched", "ticker", ticker, "timeframe", tf.String(), "count", len(out))
	return out, nil
}

// LatestPrice returns the price of the latest trade.
func (a *Alpaca) LatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	trade, err := a.client.GetLatestTrade(ticker, marketdata.GetLatestTradeRequest{Feed: a.feed})
	if err != nil {
		return decimal.Zero, fmt.Errorf("GetLatestTrade %s: %w", ticker, err)
	}
	if trade == nil {
		return decimal.Zero, fmt.Errorf("no latest trade for %s", ticker)
	}
	return decimal.NewFromFloat(trade.Price), nil
}

// LatestQuote returns the latest bid/ask.
func (a *Alpaca) LatestQuote(ctx context.Context, ticker string) (domain.Quote, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return domain.Quote{}, err
	}
	q, err := a.client.GetLatestQuote(ticker, marketdata.GetLatestQuoteRequest{Feed: a.feed})
	if err != nil {
		return domain.Quote{}, fmt.Errorf("GetLatestQuote %s: %w", ticker, err)
	}
	if q == nil {
		return domain.Quote{}, fmt.Errorf("no latest quote for %s", ticker)
	}
	return domain.Quote{
		Symbol:    ticker,
		Timestamp: q.Timestamp,
		BidPrice:  q.BidPrice,
		BidSize:   int64(q.BidSize),
		AskPrice:  q.AskPrice,
		AskSize:   int64(q.AskSize),
	}, nil
}
