package bridge

import "context"

// InertAlarm is the degraded AlarmBridge used when the native alarm
// capability is absent: permission checks report "not required", mutating
// calls fail with ErrUnavailable. The scheduler treats that as a soft skip,
// so the whole subsystem degrades to inert no-ops rather than erroring for
// every caller.
type InertAlarm struct{}

var _ AlarmBridge = InertAlarm{}

func (InertAlarm) CheckExactAlarmPermission(context.Context) (PermissionStatus, error) {
	return PermissionStatus{Granted: false, Required: false}, nil
}

func (InertAlarm) RequestExactAlarmPermission(context.Context) error { return ErrUnavailable }

func (InertAlarm) CheckOverlayPermission(context.Context) (bool, error) { return false, nil }

func (InertAlarm) RequestOverlayPermission(context.Context) error { return ErrUnavailable }

func (InertAlarm) ScheduleAlarm(context.Context, ScheduleRequest) (ScheduleResult, error) {
	return ScheduleResult{}, ErrUnavailable
}

func (InertAlarm) CancelAlarm(context.Context, string, string) (CancelResult, error) {
	return CancelResult{}, ErrUnavailable
}

func (InertAlarm) CancelAllAlarmsForTask(context.Context, string) (CancelAllResult, error) {
	return CancelAllResult{}, ErrUnavailable
}

// InertEnforcement is the degraded EnforcementBridge counterpart.
type InertEnforcement struct{}

var _ EnforcementBridge = InertEnforcement{}

func (InertEnforcement) StartBlocking(context.Context) error { return ErrUnavailable }

func (InertEnforcement) StopBlocking(context.Context) error { return ErrUnavailable }

func (InertEnforcement) IsBlocking(context.Context) (bool, error) { return false, nil }

func (InertEnforcement) InstalledApps(context.Context) ([]InstalledApp, error) {
	return nil, ErrUnavailable
}

func (InertEnforcement) SetAppSchedule(context.Context, string, []AppRule) error {
	return ErrUnavailable
}
