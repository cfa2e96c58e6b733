// Package task defines the task records the scheduling core reads.
//
// Records are owned by the UI/repository layer; the core never mutates them.
package task

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// EvaluationType describes how a task is evaluated by the host app.
// Only timer-style tasks participate in block-time scheduling.
type EvaluationType string

const (
	EvalTimer        EvaluationType = "timer"
	EvalTimerTracker EvaluationType = "timerTracker"
	EvalOther        EvaluationType = "other"
)

// FrequencyType selects the recurrence rule for a task.
type FrequencyType string

const (
	FreqOnce     FrequencyType = "Once"
	FreqDaily    FrequencyType = "Daily"
	FreqWeekdays FrequencyType = "Weekdays"
	FreqMonthly  FrequencyType = "Monthly"
	FreqYearly   FrequencyType = "Yearly"
	FreqRepeat   FrequencyType = "Repeat"
)

// YearDate is a month-day pair. Yearly rules compare these structurally,
// never as formatted strings, so zero-padding differences can't break matches.
type YearDate struct {
	Month int `json:"month"`
	Day   int `json:"day"`
}

// Frequency carries the type-specific recurrence payload.
// Only the fields matching Type are meaningful; the rest stay zero.
type Frequency struct {
	Type FrequencyType `json:"type"`

	// Weekdays: 0=Sunday .. 6=Saturday.
	Weekdays []int `json:"weekdays,omitempty"`

	// Monthly: days of month (1..31).
	MonthDays []int `json:"month_days,omitempty"`

	// Yearly: month-day pairs.
	YearDates []YearDate `json:"year_dates,omitempty"`

	// Repeat, variant 1: every N days from the start date.
	EveryDays int `json:"every_days,omitempty"`

	// Repeat, variant 2: N active days followed by M rest days, cycling.
	ActivityDays int `json:"activity_days,omitempty"`
	RestDays     int `json:"rest_days,omitempty"`
}

// BlockWindow is a daily time-of-day window during which enforcement applies.
// Times are "HH:MM" or "HH:MM AM/PM" strings as stored by the UI layer.
type BlockWindow struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Task is a read-only snapshot of one task record.
type Task struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Title  string `json:"title"`

	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`

	BlockTimeEnabled bool `json:"block_time_enabled"`

	// BlockTimeData is stored by some clients as a JSON object and by older
	// clients as a JSON-encoded string containing that object. Use Window()
	// instead of decoding this directly.
	BlockTimeData json.RawMessage `json:"block_time_data,omitempty"`

	// StartTime is the root-level start time some records carry. It wins over
	// the block-time window when present; see ResolveStartTime.
	StartTime string `json:"start_time,omitempty"`

	// LegacyReminderTime is the pre-block-time field older records used.
	LegacyReminderTime string `json:"reminder_time,omitempty"`

	EvaluationType EvaluationType `json:"evaluation_type"`
	Frequency      Frequency      `json:"frequency"`

	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date,omitzero"`
	EndDateEnabled bool      `json:"end_date_enabled,omitempty"`

	// Secondary settings carried into alarm snapshots so the native side can
	// rebuild the alarm payload without another repository round-trip.
	IntervalMinutes int `json:"interval_minutes,omitempty"`
	DurationMinutes int `json:"duration_minutes,omitempty"`
	TargetCount     int `json:"target_count,omitempty"`
}

// SchedulingEligible reports whether the task participates in block-time
// alarm scheduling at all: block time on and a timer-style evaluation type.
func (t Task) SchedulingEligible() bool {
	if !t.BlockTimeEnabled {
		return false
	}
	return t.EvaluationType == EvalTimer || t.EvaluationType == EvalTimerTracker
}

// Window decodes the block-time window, accepting both the object form and
// the legacy JSON-string form. Returns false when absent or undecodable.
func (t Task) Window() (BlockWindow, bool) {
	raw := bytes.TrimSpace(t.BlockTimeData)
	if len(raw) == 0 || string(raw) == "null" {
		return BlockWindow{}, false
	}

	// Legacy form: a JSON string containing the object.
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return BlockWindow{}, false
		}
		raw = []byte(inner)
	}

	var w BlockWindow
	if err := json.Unmarshal(raw, &w); err != nil {
		return BlockWindow{}, false
	}
	if strings.TrimSpace(w.StartTime) == "" {
		return BlockWindow{}, false
	}
	return w, true
}

// ResolveStartTime picks the task's alarm start time using the three-tier
// fallback: root-level start_time, then the block-time window, then the
// legacy reminder field. Returns false when no tier yields a value; such a
// task is skipped by the scheduler, never treated as a batch failure.
func (t Task) ResolveStartTime() (string, bool) {
	if s := strings.TrimSpace(t.StartTime); s != "" {
		return s, true
	}
	if w, ok := t.Window(); ok {
		return strings.TrimSpace(w.StartTime), true
	}
	if s := strings.TrimSpace(t.LegacyReminderTime); s != "" {
		return s, true
	}
	return "", false
}
