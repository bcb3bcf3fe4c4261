package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebot/internal/util"
)

func nyCalendar(t *testing.T) *util.TradingCalendar {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	cal, err := util.NewTradingCalendar(loc, "09:30", "16:00")
	require.NoError(t, err)
	return cal
}

// fakeClock advances by the slept duration.
type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func TestTickGatesOnMarketHours(t *testing.T) {
	cal := nyCalendar(t)
	clock := &fakeClock{now: time.Date(2024, 6, 12, 9, 0, 0, 0, cal.Location())}
	runs := 0
	s := New(cal, 15*time.Minute, func(context.Context) error { runs++; return nil },
		WithClock(clock.Now), WithSleeper(clock.Sleep))

	ran, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, ran, "before open")

	clock.now = time.Date(2024, 6, 12, 9, 30, 0, 0, cal.Location())
	ran, err = s.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, ran, "at open")

	clock.now = time.Date(2024, 6, 15, 11, 0, 0, 0, cal.Location())
	ran, err = s.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, ran, "saturday")
	assert.Equal(t, 1, runs)
}

func TestRunStopsOnFatalError(t *testing.T) {
	cal := nyCalendar(t)
	clock := &fakeClock{now: time.Date(2024, 6, 12, 15, 0, 0, 0, cal.Location())}
	fatal := errors.New("broker unreachable")
	runs := 0
	s := New(cal, 20*time.Minute, func(context.Context) error {
		runs++
		if runs == 3 {
			return fatal
		}
		return nil
	}, WithClock(clock.Now), WithSleeper(clock.Sleep))

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 3, runs)
	assert.Equal(t, []time.Duration{20 * time.Minute, 20 * time.Minute}, clock.slept)
}

func TestRunSkipsClosedHoursAndHonoursCancel(t *testing.T) {
	cal := nyCalendar(t)
	// 15:30 → runs at 15:30 and 15:50; 16:10 onward is closed.
	clock := &fakeClock{now: time.Date(2024, 6, 12, 15, 30, 0, 0, cal.Location())}
	ctx, cancel := context.WithCancel(context.Background())
	runs := 0
	sleeps := 0
	s := New(cal, 20*time.Minute, func(context.Context) error { runs++; return nil },
		WithClock(clock.Now),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			sleeps++
			if sleeps == 5 {
				cancel()
				return ctx.Err()
			}
			return clock.Sleep(ctx, d)
		}))

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, runs)
}

func TestIdleHookRunsWhileClosed(t *testing.T) {
	cal := nyCalendar(t)
	clock := &fakeClock{now: time.Date(2024, 6, 12, 16, 5, 0, 0, cal.Location())}
	var idleAt []time.Time
	s := New(cal, time.Minute, func(context.Context) error { t.Fatal("cycle ran after close"); return nil },
		WithClock(clock.Now),
		WithIdle(func(_ context.Context, now time.Time) error {
			idleAt = append(idleAt, now)
			return nil
		}))

	ran, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	require.Len(t, idleAt, 1)
	assert.Equal(t, clock.now, idleAt[0])
}

func TestSessionChangesAreLogged(t *testing.T) {
	cal := nyCalendar(t)
	clock := &fakeClock{now: time.Date(2024, 6, 12, 15, 50, 0, 0, cal.Location())}
	var buf bytes.Buffer
	s := New(cal, 10*time.Minute, func(context.Context) error { return nil },
		WithClock(clock.Now), WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.Tick(ctx)
		require.NoError(t, err)
		clock.now = clock.now.Add(10 * time.Minute)
	}

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "market open"), out)
	assert.Equal(t, 1, strings.Count(out, "market closed"), out)
	assert.Contains(t, out, "closes_at=2024-06-12T16:00:00.000-04:00")
	assert.Contains(t, out, "next_open=2024-06-13T09:30:00.000-04:00")
}
