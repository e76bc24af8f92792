package domain

import (
	"fmt"
	"time"
)

// TradingHours is a daily [Start, End) clock window in a given location.
type TradingHours struct {
	Start    time.Duration // offset from midnight
	End      time.Duration
	Location *time.Location
}

// ParseTradingHours parses "HH:MM" bounds. End must be after Start.
func ParseTradingHours(start, end string, loc *time.Location) (TradingHours, error) {
	s, err := parseClock(start)
	if err != nil {
		return TradingHours{}, err
	}
	e, err := parseClock(end)
	if err != nil {
		return TradingHours{}, err
	}
	if e <= s {
		return TradingHours{}, fmt.Errorf("trading end %s must be after start %s", end, start)
	}
	if loc == nil {
		loc = time.UTC
	}
	return TradingHours{Start: s, End: e, Location: loc}, nil
}

func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q, expected HH:MM: %w", v, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Contains reports whether t falls inside the window on its own day. The window is
// half-open: the opening minute is inside, the closing minute is not.
func (h TradingHours) Contains(t time.Time) bool {
	offset := h.offset(t)
	return offset >= h.Start && offset < h.End
}

// Remaining returns how long until the window closes, or 0 when outside it.
func (h TradingHours) Remaining(t time.Time) time.Duration {
	if !h.Contains(t) {
		return 0
	}
	return h.End - h.offset(t)
}

// StartOfDay returns midnight of t's day in the window's location.
func (h TradingHours) StartOfDay(t time.Time) time.Time {
	local := t.In(h.loc())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, h.loc())
}

func (h TradingHours) offset(t time.Time) time.Duration {
	return t.Sub(h.StartOfDay(t))
}

func (h TradingHours) loc() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

func (h TradingHours) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d %s",
		int(h.Start.Hours()), int(h.Start.Minutes())%60,
		int(h.End.Hours()), int(h.End.Minutes())%60, h.loc())
}
