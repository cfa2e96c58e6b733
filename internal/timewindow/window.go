// Package timewindow evaluates time-of-day windows, including windows that
// wrap past midnight. Pure functions; callers inject "now".
package timewindow

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// ParseClock converts "HH:MM" or "HH:MM AM/PM" (meridiem case-insensitive)
// into minutes since midnight (0..1439).
//
// Malformed input returns 0 with a non-nil error. Callers log it as a data
// error and carry on with the zero value; stored clock strings must never
// crash an evaluation tick.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty clock value")
	}

	// Split off an optional meridiem token.
	meridiem := ""
	if fields := strings.Fields(s); len(fields) == 2 {
		s = fields[0]
		meridiem = strings.ToUpper(fields[1])
		if meridiem != "AM" && meridiem != "PM" {
			return 0, fmt.Errorf("invalid meridiem %q", fields[1])
		}
	} else if len(fields) > 2 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}

	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if m < 0 || m > 59 {
		return 0, fmt.Errorf("minute out of range in %q", s)
	}

	switch meridiem {
	case "AM":
		if h < 1 || h > 12 {
			return 0, fmt.Errorf("hour out of range in %q", s)
		}
		if h == 12 {
			h = 0
		}
	case "PM":
		if h < 1 || h > 12 {
			return 0, fmt.Errorf("hour out of range in %q", s)
		}
		if h != 12 {
			h += 12
		}
	default:
		if h < 0 || h > 23 {
			return 0, fmt.Errorf("hour out of range in %q", s)
		}
	}

	return h*60 + m, nil
}

// MinuteOfDay returns t's minutes since local midnight.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// Window is a start/end pair in minutes since midnight.
type Window struct {
	Start int
	End   int
}

// Overnight reports whether the window wraps past midnight. A window whose
// end is numerically at or before its start is treated as overnight.
func (w Window) Overnight() bool {
	return w.End <= w.Start
}

// Contains reports whether the given minute-of-day falls inside the window.
//
// Same-day windows are inclusive on both ends. Overnight windows match from
// the start until midnight and from midnight through the (wrapped) end.
func (w Window) Contains(minute int) bool {
	if w.Overnight() {
		end := (w.End + minutesPerDay) % minutesPerDay
		return minute >= w.Start || minute <= end
	}
	return minute >= w.Start && minute <= w.End
}

// Parse builds a Window from two stored clock strings. A malformed endpoint
// contributes minute 0 (the returned error says which one); the window is
// still usable, matching how the rest of the core treats bad stored data.
func Parse(start, end string) (Window, error) {
	var firstErr error
	s, err := ParseClock(start)
	if err != nil {
		firstErr = fmt.Errorf("start: %w", err)
	}
	e, err := ParseClock(end)
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("end: %w", err)
	}
	return Window{Start: s, End: e}, firstErr
}

// IsNowInRange evaluates the stored start/end strings against now.
// This is the single call sites use on every poll tick.
func IsNowInRange(start, end string, now time.Time) bool {
	w, _ := Parse(start, end)
	return w.Contains(MinuteOfDay(now))
}
