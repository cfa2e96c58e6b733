package alarm

import (
	"encoding/json"

	"blockd/internal/recurrence"
	"blockd/internal/task"
)

// Snapshot is the serialized task state handed to the native side when an
// alarm is registered, so the alarm payload can be rebuilt at fire time
// without another repository round-trip.
//
// One sub-struct per evaluation type instead of an open-ended map: a missing
// field is a compile error here, not a runtime surprise at the native side.
type Snapshot struct {
	TaskID         string              `json:"task_id"`
	Title          string              `json:"title"`
	Category       string              `json:"category,omitempty"`
	EvaluationType task.EvaluationType `json:"evaluation_type"`
	StartTime      string              `json:"start_time"`

	Frequency      task.Frequency `json:"frequency"`
	StartDate      string         `json:"start_date"`
	EndDate        string         `json:"end_date,omitempty"`
	EndDateEnabled bool           `json:"end_date_enabled,omitempty"`

	Timer   *TimerSettings   `json:"timer,omitempty"`
	Tracker *TrackerSettings `json:"tracker,omitempty"`
}

// TimerSettings carries the secondary settings of a plain timer task.
type TimerSettings struct {
	DurationMinutes int `json:"duration_minutes,omitempty"`
}

// TrackerSettings carries the secondary settings of a timer-tracker task.
type TrackerSettings struct {
	IntervalMinutes int `json:"interval_minutes,omitempty"`
	TargetCount     int `json:"target_count,omitempty"`
}

func buildSnapshot(t task.Task, startTime string) (string, error) {
	s := Snapshot{
		TaskID:         t.ID,
		Title:          t.Title,
		Category:       t.Category,
		EvaluationType: t.EvaluationType,
		StartTime:      startTime,
		Frequency:      t.Frequency,
		StartDate:      recurrence.DateKey(t.StartDate),
		EndDateEnabled: t.EndDateEnabled,
	}
	if t.EndDateEnabled && !t.EndDate.IsZero() {
		s.EndDate = recurrence.DateKey(t.EndDate)
	}

	switch t.EvaluationType {
	case task.EvalTimer:
		s.Timer = &TimerSettings{DurationMinutes: t.DurationMinutes}
	case task.EvalTimerTracker:
		s.Tracker = &TrackerSettings{
			IntervalMinutes: t.IntervalMinutes,
			TargetCount:     t.TargetCount,
		}
	}

	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
