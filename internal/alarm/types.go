// Package alarm keeps the native alarm registry consistent with the user's
// tasks and standalone custom alarms.
package alarm

import (
	"context"
	"time"

	"blockd/internal/bridge"
)

// Tone describes the sound an alarm plays. Type "custom" requires a
// non-empty URI; validation rejects it otherwise before any bridge call.
type Tone struct {
	Type bridge.ToneType `json:"type"`
	URI  string          `json:"uri,omitempty"`
	Name string          `json:"name,omitempty"`
}

// CustomAlarm is a user-authored standalone alarm, independent of tasks.
// IDs are always canonical strings, never bare numbers.
type CustomAlarm struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Label   string `json:"label,omitempty"`
	Time    string `json:"time"`           // "HH:MM"
	Days    []int  `json:"days,omitempty"` // 0=Sunday..6; empty = one-shot
	Enabled bool   `json:"enabled"`
	Tone    Tone   `json:"tone"`
}

// ScheduledAlarm mirrors one native alarm registration. The composite
// (TaskID, DateKey) is the identity: at most one live native alarm exists per
// pair, enforced by cancel-then-create on every schedule.
//
// Mirror rows are a best-effort cache of the native registry, not a source of
// truth; after a reboot they may be stale until the next full refresh.
type ScheduledAlarm struct {
	TaskID      string
	DateKey     string // "YYYY-MM-DD"
	TriggerTime time.Time
	RequestCode int64
	Source      string
}

// Store persists the scheduled-alarm mirror and custom alarm records.
// A nil Store is valid everywhere; persistence is strictly best-effort.
type Store interface {
	PutScheduledAlarm(ctx context.Context, rec ScheduledAlarm) error
	DeleteScheduledAlarm(ctx context.Context, taskID, dateKey string) error
	DeleteScheduledAlarmsForTask(ctx context.Context, taskID string) (int, error)
	ScheduledAlarmsForTask(ctx context.Context, taskID string) ([]ScheduledAlarm, error)

	PutCustomAlarm(ctx context.Context, a CustomAlarm) error
	GetCustomAlarm(ctx context.Context, id string) (CustomAlarm, bool, error)
	DeleteCustomAlarm(ctx context.Context, id string) error
	CustomAlarms(ctx context.Context, userID string) ([]CustomAlarm, error)
}
