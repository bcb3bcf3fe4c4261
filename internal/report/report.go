// Package report computes the realized result of a trading day from account
// activities.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
	"tradebot/internal/notify"
	"tradebot/internal/store"
)

// ActivityReader lists executed account activities.
type ActivityReader interface {
	ListActivities(ctx context.Context, since, until time.Time) ([]domain.Activity, error)
}

// CapitalSource reports funds available for new positions.
type CapitalSource interface {
	FreeCapital(ctx context.Context) (decimal.Decimal, error)
}

// Builder assembles, stores, and publishes daily reports.
type Builder struct {
	activities ActivityReader
	capital    CapitalSource
	reports    store.ReportStore
	notifier   notify.TextNotifier
	loc        *time.Location
	now        func() time.Time
	log        *slog.Logger
}

// NewBuilder creates a Builder. Days are delimited in loc. reports and
// notifier may be nil.
func NewBuilder(activities ActivityReader, capital CapitalSource, reports store.ReportStore, notifier notify.TextNotifier, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{
		activities: activities,
		capital:    capital,
		reports:    reports,
		notifier:   notifier,
		loc:        loc,
		now:        time.Now,
		log:        slog.Default().With("component", "report"),
	}
}

// Daily reports on today's activities so far, appends the report to the
// store, and sends it to the notifier.
func (b *Builder) Daily(ctx context.Context) (*domain.Report, error) {
	now := b.now().In(b.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, b.loc)

	acts, err := b.activities.ListActivities(ctx, start, now)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	free, err := b.capital.FreeCapital(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading free capital: %w", err)
	}

	r := Compute(acts, free)
	r.Date = start
	b.log.Info("daily report", "date", start.Format("2006-01-02"), "result", r.Result,
		"commissions", r.Commissions, "percent", r.ResultPercent, "activities", len(acts))

	if b.reports != nil {
		if err := b.reports.SaveReport(ctx, &r); err != nil {
			return nil, err
		}
	}
	notify.Send(ctx, b.notifier, Format(r))
	return &r, nil
}

// Compute derives a report from one day's activities. Within each ticker,
// the latest sell is paired with the latest buy repeatedly until one side
// runs out; each pair contributes its signed cash flows. Unpaired fills are
// open positions and do not count. Fees are summed as commissions, and the
// result includes them. The percentage is relative to free.
func Compute(acts []domain.Activity, free decimal.Decimal) domain.Report {
	sorted := append([]domain.Activity(nil), acts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TransactionTime.Before(sorted[j].TransactionTime)
	})

	type sides struct{ buys, sells []decimal.Decimal }
	byTicker := make(map[string]*sides)
	commissions := decimal.Zero
	for _, a := range sorted {
		switch a.Kind {
		case domain.ActivityFee:
			commissions = commissions.Add(a.NetAmount)
		case domain.ActivityFill:
			s, ok := byTicker[a.Ticker]
			if !ok {
				s = &sides{}
				byTicker[a.Ticker] = s
			}
			if a.Side == domain.OrderSideBuy {
				s.buys = append(s.buys, payment(a))
			} else {
				s.sells = append(s.sells, payment(a))
			}
		}
	}

	trading := decimal.Zero
	for _, s := range byTicker {
		for len(s.buys) > 0 && len(s.sells) > 0 {
			trading = trading.Add(s.sells[len(s.sells)-1]).Add(s.buys[len(s.buys)-1])
			s.sells = s.sells[:len(s.sells)-1]
			s.buys = s.buys[:len(s.buys)-1]
		}
	}

	result := trading.Add(commissions)
	pct := decimal.Zero
	if free.Sign() > 0 {
		pct = result.Div(free).Mul(decimal.NewFromInt(100))
	}
	return domain.Report{
		Result:        result,
		Commissions:   commissions,
		ResultPercent: pct,
	}
}

// payment is the signed cash flow of a fill: negative for buys.
func payment(a domain.Activity) decimal.Decimal {
	if !a.NetAmount.IsZero() {
		return a.NetAmount
	}
	v := a.Qty.Abs().Mul(a.Price)
	if a.Side == domain.OrderSideBuy {
		return v.Neg()
	}
	return v
}

// Format renders r as a notification message.
func Format(r domain.Report) string {
	icon := "🔴"
	if r.Result.Sign() > 0 {
		icon = "🟢"
	}
	return fmt.Sprintf("Trading result %s\n%s %s USD\n%s %s%%\ncommissions %s",
		r.Date.Format("2006-01-02"),
		icon, r.Result.StringFixed(2),
		icon, r.ResultPercent.StringFixed(2),
		r.Commissions.StringFixed(2))
}
