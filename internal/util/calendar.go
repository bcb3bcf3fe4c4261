package util

import (
	"fmt"
	"time"
)

// TradingCalendar answers whether trading is allowed at a given instant: a
// weekday, inside the daily session window [start, end) in the calendar's
// location, and, when session dates are loaded, on a listed session date.
type TradingCalendar struct {
	loc      *time.Location
	start    time.Duration // offset from midnight
	end      time.Duration
	sessions map[string]bool
}

// NewTradingCalendar creates a TradingCalendar for the window start–end
// (HH:MM, local to loc).
func NewTradingCalendar(loc *time.Location, start, end string) (*TradingCalendar, error) {
	if loc == nil {
		loc = time.UTC
	}
	s, err := ParseClock(start)
	if err != nil {
		return nil, fmt.Errorf("session start: %w", err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return nil, fmt.Errorf("session end: %w", err)
	}
	if e <= s {
		return nil, fmt.Errorf("session end %s must be after start %s", end, start)
	}
	return &TradingCalendar{loc: loc, start: s, end: e}, nil
}

// ParseClock parses an HH:MM time of day into an offset from midnight.
func ParseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("parsing clock %q: %w", v, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Location returns the calendar's time zone.
func (tc *TradingCalendar) Location() *time.Location { return tc.loc }

// SetSessions restricts trading to the given dates (YYYY-MM-DD, exchange
// local). An empty list removes the restriction.
func (tc *TradingCalendar) SetSessions(dates []string) {
	if len(dates) == 0 {
		tc.sessions = nil
		return
	}
	tc.sessions = make(map[string]bool, len(dates))
	for _, d := range dates {
		tc.sessions[d] = true
	}
}

// IsTradingDay reports whether the local date of t is a session date.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	lt := t.In(tc.loc)
	switch lt.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if tc.sessions != nil {
		return tc.sessions[lt.Format("2006-01-02")]
	}
	return true
}

// IsMarketOpen returns whether the market is open at time t.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	if !tc.IsTradingDay(t) {
		return false
	}
	lt := t.In(tc.loc)
	off := time.Duration(lt.Hour())*time.Hour +
		time.Duration(lt.Minute())*time.Minute +
		time.Duration(lt.Second())*time.Second
	return off >= tc.start && off < tc.end
}

// SessionOver reports whether t falls on a trading day after that day's
// session has ended.
func (tc *TradingCalendar) SessionOver(t time.Time) bool {
	if !tc.IsTradingDay(t) {
		return false
	}
	lt := t.In(tc.loc)
	return !lt.Before(at(lt, tc.end))
}

// NextOpen returns the next market open time at or after t.
func (tc *TradingCalendar) NextOpen(t time.Time) time.Time {
	lt := t.In(tc.loc)
	day := midnight(lt)
	for i := 0; i < 370; i++ {
		open := at(day, tc.start)
		if tc.IsTradingDay(open) && !open.Before(lt) {
			return open
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}
}

// NextClose returns the next market close time at or after t.
func (tc *TradingCalendar) NextClose(t time.Time) time.Time {
	if tc.IsMarketOpen(t) {
		return at(t.In(tc.loc), tc.end)
	}
	open := tc.NextOpen(t)
	if open.IsZero() {
		return open
	}
	return at(open, tc.end)
}

// at returns the wall-clock time off past midnight on t's local date.
func at(t time.Time, off time.Duration) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(),
		int(off/time.Hour), int(off%time.Hour/time.Minute), 0, 0, t.Location())
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
