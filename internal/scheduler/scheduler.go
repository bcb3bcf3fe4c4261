// Package scheduler gates the decision cycle to market hours and re-runs
// it at a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Calendar reports whether the market is open at an instant and when the
// session boundaries fall.
type Calendar interface {
	IsMarketOpen(t time.Time) bool
	NextOpen(t time.Time) time.Time
	NextClose(t time.Time) time.Time
}

// Scheduler invokes run once per interval while the market is open.
type Scheduler struct {
	cal      Calendar
	interval time.Duration
	run      func(ctx context.Context) error
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	idle     func(ctx context.Context, now time.Time) error
	log      *slog.Logger

	// session is 1 while open, -1 while closed, 0 before the first tick.
	session int
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithSleeper replaces the interval wait.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) { s.sleep = sleep }
}

// WithIdle sets a hook invoked on ticks that fall outside market hours.
func WithIdle(idle func(ctx context.Context, now time.Time) error) Option {
	return func(s *Scheduler) { s.idle = idle }
}

// WithLogger replaces the scheduler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// New creates a Scheduler.
func New(cal Calendar, interval time.Duration, run func(ctx context.Context) error, opts ...Option) *Scheduler {
	s := &Scheduler{
		cal:      cal,
		interval: interval,
		run:      run,
		now:      time.Now,
		sleep:    sleepCtx,
		log:      slog.Default().With("component", "scheduler"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run loops until run returns an error or ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started", "interval", s.interval)
	for {
		if _, err := s.Tick(ctx); err != nil {
			return err
		}
		if err := s.sleep(ctx, s.interval); err != nil {
			s.log.Info("scheduler stopped", "reason", err)
			return err
		}
	}
}

// Tick runs the cycle once if the market is open. ran reports whether it
// did.
func (s *Scheduler) Tick(ctx context.Context) (ran bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	now := s.now()
	open := s.cal.IsMarketOpen(now)
	s.logSession(now, open)
	if !open {
		s.log.Debug("market closed, skipping cycle", "now", now)
		if s.idle != nil {
			return false, s.idle(ctx, now)
		}
		return false, nil
	}
	return true, s.run(ctx)
}

// logSession logs session changes along with the next boundary.
func (s *Scheduler) logSession(now time.Time, open bool) {
	state := -1
	if open {
		state = 1
	}
	if state == s.session {
		return
	}
	s.session = state
	if open {
		s.log.Info("market open", "closes_at", s.cal.NextClose(now))
		return
	}
	s.log.Info("market closed", "next_open", s.cal.NextOpen(now))
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
