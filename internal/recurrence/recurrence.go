// Package recurrence decides whether a task is due on a given calendar date.
//
// Everything here is pure calendar math: no clocks, no logging, no bridges.
package recurrence

import (
	"time"

	"blockd/internal/task"
)

// Midnight normalizes t to 00:00 of its calendar day in its own location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DateKey formats the local calendar date as the ISO key used for alarm
// identity. Always derived from the local date, never from a UTC timestamp.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// DaysBetween counts whole calendar days from a to b. Negative when b is
// before a. The dates are re-anchored in UTC so a DST transition inside the
// interval (a 23- or 25-hour local day) can't skew the count.
func DaysBetween(a, b time.Time) int {
	ay, amo, ad := a.Date()
	by, bmo, bd := b.Date()
	au := time.Date(ay, amo, ad, 0, 0, 0, 0, time.UTC)
	bu := time.Date(by, bmo, bd, 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au) / (24 * time.Hour))
}

// IsDue reports whether the task's recurrence rule fires on date.
//
// date is normalized to midnight internally; the task's start/end dates are
// treated the same way. A date before the start date is never due, and a date
// past an enabled end date is never due.
func IsDue(t task.Task, date time.Time) bool {
	day := Midnight(date)
	start := Midnight(t.StartDate)

	if day.Before(start) {
		return false
	}
	if t.EndDateEnabled && !t.EndDate.IsZero() && day.After(Midnight(t.EndDate)) {
		return false
	}

	switch t.Frequency.Type {
	case task.FreqOnce:
		return day.Equal(start)

	case task.FreqDaily:
		return true

	case task.FreqWeekdays:
		wd := int(day.Weekday()) // 0=Sunday .. 6=Saturday
		for _, d := range t.Frequency.Weekdays {
			if d == wd {
				return true
			}
		}
		return false

	case task.FreqMonthly:
		dom := day.Day()
		for _, d := range t.Frequency.MonthDays {
			if d == dom {
				return true
			}
		}
		return false

	case task.FreqYearly:
		m, d := int(day.Month()), day.Day()
		for _, yd := range t.Frequency.YearDates {
			if yd.Month == m && yd.Day == d {
				return true
			}
		}
		return false

	case task.FreqRepeat:
		offset := DaysBetween(start, day)
		if t.Frequency.EveryDays > 0 {
			return offset%t.Frequency.EveryDays == 0
		}
		cycle := t.Frequency.ActivityDays + t.Frequency.RestDays
		// A zero cycle (or zero every_days above) means "never due",
		// not a divide-by-zero.
		if cycle <= 0 || t.Frequency.ActivityDays <= 0 {
			return false
		}
		return offset%cycle < t.Frequency.ActivityDays

	default:
		return false
	}
}

// DueDates returns the dates within [from, from+days) on which the task is
// due, normalized to midnight.
func DueDates(t task.Task, from time.Time, days int) []time.Time {
	out := make([]time.Time, 0, days)
	day := Midnight(from)
	for i := 0; i < days; i++ {
		if IsDue(t, day) {
			out = append(out, day)
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}
