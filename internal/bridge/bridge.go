// Package bridge defines the contracts between the scheduling core and the
// native OS alarm / enforcement subsystems.
//
// Every call is context-bound and may suspend the caller; these boundaries
// are the only suspension points in the core. The native registries behind
// the bridges are mutated through these calls only, never read back and
// locally patched.
package bridge

import (
	"context"
	"time"
)

// PermissionStatus reports an exact-alarm capability check.
type PermissionStatus struct {
	Granted  bool
	Required bool // false on platforms that don't gate exact alarms
}

// ToneType selects the alarm sound.
type ToneType string

const (
	ToneDefault ToneType = "default"
	ToneCustom  ToneType = "custom"
)

// ScheduleRequest carries everything the native side needs to register one
// alarm. SnapshotJSON is an opaque serialized task snapshot the native alarm
// UI uses to rebuild its payload; the bridge does not interpret it.
type ScheduleRequest struct {
	TaskID         string
	Title          string
	Description    string
	EvaluationType string
	StartTime      string // "HH:MM"
	Category       string
	Source         string // originating table/collection tag
	SnapshotJSON   string
	DateKey        string // "YYYY-MM-DD"

	// Custom-alarm variant only.
	ToneType ToneType
	ToneURI  string
	ToneName string
}

type ScheduleResult struct {
	Success     bool
	RequestCode int64 // opaque native handle
	TriggerTime time.Time
}

type CancelResult struct {
	Success     bool
	RequestCode int64
}

type CancelAllResult struct {
	Success        bool
	CancelledCount int
}

// AlarmBridge is the native alarm registry.
//
// Cancel calls are idempotent: cancelling an alarm that was never scheduled
// returns a benign result, not an error.
type AlarmBridge interface {
	CheckExactAlarmPermission(ctx context.Context) (PermissionStatus, error)
	RequestExactAlarmPermission(ctx context.Context) error
	CheckOverlayPermission(ctx context.Context) (bool, error)
	RequestOverlayPermission(ctx context.Context) error

	ScheduleAlarm(ctx context.Context, req ScheduleRequest) (ScheduleResult, error)
	CancelAlarm(ctx context.Context, taskID, dateKey string) (CancelResult, error)
	CancelAllAlarmsForTask(ctx context.Context, taskID string) (CancelAllResult, error)
}

// InstalledApp is one installed package as reported by the enforcement side.
type InstalledApp struct {
	PackageName string
	Name        string
}

// AppRule is a single per-app blocking rule used on the fallback path when
// device-wide blocking is unavailable.
type AppRule struct {
	StartTime string // "HH:MM"
	EndTime   string // "HH:MM"
	Block     bool
}

// EnforcementBridge drives device-wide app blocking.
//
// SetAppSchedule is the app-by-app fallback used when StartBlocking is not
// available on the device.
type EnforcementBridge interface {
	StartBlocking(ctx context.Context) error
	StopBlocking(ctx context.Context) error
	IsBlocking(ctx context.Context) (bool, error)

	InstalledApps(ctx context.Context) ([]InstalledApp, error)
	SetAppSchedule(ctx context.Context, packageName string, rules []AppRule) error
}
