package alarm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"blockd/internal/bridge"
	"blockd/internal/eventbus"
	"blockd/internal/recurrence"
	"blockd/internal/task"
	logx "blockd/pkg/logx"
)

const taskSource = "tasks"

// Scheduler keeps the native alarm registry consistent with all
// block-time-enabled tasks for today plus a rolling look-ahead window.
//
// One instance per active user session. The handle map is a best-effort
// cache of native request codes; the native registry is only ever mutated
// through the bridge, never read back and patched.
type Scheduler struct {
	log    logx.Logger
	repo   task.Repository
	bridge bridge.AlarmBridge
	store  Store // may be nil
	bus    eventbus.Bus
	opt    bridge.CallOptions
	now    func() time.Time

	mu      sync.Mutex
	userID  string
	handles map[string]int64 // taskID+"|"+dateKey -> requestCode
}

func NewScheduler(repo task.Repository, b bridge.AlarmBridge, store Store, bus eventbus.Bus, log logx.Logger, opt bridge.CallOptions) *Scheduler {
	if b == nil {
		b = bridge.InertAlarm{}
	}
	return &Scheduler{
		log:     log.With(logx.String("svc", "task_alarms")),
		repo:    repo,
		bridge:  b,
		store:   store,
		bus:     bus,
		opt:     opt,
		now:     time.Now,
		handles: map[string]int64{},
	}
}

// SetNow overrides the clock. Test hook.
func (s *Scheduler) SetNow(now func() time.Time) { s.now = now }

// Initialize binds the scheduler to a user session. It schedules nothing.
func (s *Scheduler) Initialize(userID string) {
	s.mu.Lock()
	s.userID = strings.TrimSpace(userID)
	s.mu.Unlock()
}

func (s *Scheduler) boundUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func handleKey(taskID, dateKey string) string { return taskID + "|" + dateKey }

// eligibleTasks is the client-side filter over the repository: block time on
// and a timer-style evaluation type.
func (s *Scheduler) eligibleTasks(ctx context.Context) ([]task.Task, error) {
	userID := s.boundUser()
	if userID == "" {
		return nil, errors.New("scheduler not initialized")
	}
	all, err := s.repo.Tasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, t := range all {
		if t.SchedulingEligible() {
			out = append(out, t)
		}
	}
	return out, nil
}

// ScheduleTodayAlarms schedules one alarm per due, eligible task for today's
// date key. Per-task failures land in the report; the batch never aborts.
func (s *Scheduler) ScheduleTodayAlarms(ctx context.Context) (Report, error) {
	return s.scheduleForDate(ctx, s.now())
}

// ScheduleUpcomingAlarms runs the today pass for each of the next daysAhead
// calendar dates. Each date is independent; a bad date never stops the rest.
func (s *Scheduler) ScheduleUpcomingAlarms(ctx context.Context, daysAhead int) (Report, error) {
	var report Report
	var firstErr error
	start := s.now()
	for i := 1; i <= daysAhead; i++ {
		r, err := s.scheduleForDate(ctx, start.AddDate(0, 0, i))
		report.Merge(r)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return report, firstErr
}

func (s *Scheduler) scheduleForDate(ctx context.Context, date time.Time) (Report, error) {
	var report Report
	dateKey := recurrence.DateKey(date)

	tasks, err := s.eligibleTasks(ctx)
	if err != nil {
		return report, err
	}

	for _, t := range tasks {
		res := TaskResult{TaskID: t.ID, Title: t.Title, DateKey: dateKey}

		if _, ok := t.ResolveStartTime(); !ok {
			// No resolvable start time is a data gap, not a batch failure.
			res.Status = StatusSkipped
			res.Reason = "no start time"
			report.add(res)
			s.log.Warn("task has no resolvable start time", logx.String("task", t.ID))
			continue
		}
		if !recurrence.IsDue(t, date) {
			res.Status = StatusSkipped
			res.Reason = "not due"
			report.add(res)
			continue
		}

		if err := s.ScheduleAlarmForTask(ctx, t, date); err != nil {
			res.Status = StatusFailed
			res.Reason = err.Error()
			report.add(res)
			if !errors.Is(err, bridge.ErrUnavailable) {
				s.log.Warn("alarm schedule failed",
					logx.String("task", t.ID),
					logx.String("date", dateKey),
					logx.Err(err),
				)
			}
			continue
		}
		res.Status = StatusScheduled
		report.add(res)
	}

	s.log.Debug("schedule pass complete",
		logx.String("date", dateKey),
		logx.Int("scheduled", report.Scheduled),
		logx.Int("total", report.Total),
	)
	return report, nil
}

// ScheduleAlarmForTask registers one alarm for the task on the given date.
// It cancels any live alarm for the same (task, date) first; duplicates must
// never accumulate, so this is cancel-then-create, not create-if-absent.
//
// A successful bridge call records the native handle. Success does not
// guarantee the native side will actually fire; that is outside this core.
func (s *Scheduler) ScheduleAlarmForTask(ctx context.Context, t task.Task, date time.Time) error {
	startTime, ok := t.ResolveStartTime()
	if !ok {
		return bridge.Validation("start_time", "no resolvable start time")
	}
	dateKey := recurrence.DateKey(date)

	// Cancellation must be issued before the new schedule call for the same
	// task. Hard ordering invariant, not an optimization.
	s.CancelAlarm(ctx, t.ID, dateKey)

	snapshot, err := buildSnapshot(t, startTime)
	if err != nil {
		return err
	}
	req := bridge.ScheduleRequest{
		TaskID:         t.ID,
		Title:          t.Title,
		Description:    t.Description,
		EvaluationType: string(t.EvaluationType),
		StartTime:      startTime,
		Category:       t.Category,
		Source:         taskSource,
		SnapshotJSON:   snapshot,
		DateKey:        dateKey,
	}
	res, err := bridge.Call(ctx, s.log, "schedule_alarm", s.opt, func(ctx context.Context) (bridge.ScheduleResult, error) {
		return s.bridge.ScheduleAlarm(ctx, req)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.handles[handleKey(t.ID, dateKey)] = res.RequestCode
	s.mu.Unlock()

	if s.store != nil {
		rec := ScheduledAlarm{
			TaskID:      t.ID,
			DateKey:     dateKey,
			TriggerTime: res.TriggerTime,
			RequestCode: res.RequestCode,
			Source:      taskSource,
		}
		if err := s.store.PutScheduledAlarm(ctx, rec); err != nil {
			s.log.Warn("alarm mirror persist failed", logx.String("task", t.ID), logx.Err(err))
		}
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeAlarmScheduled, Data: eventbus.AlarmEvent{
			TaskID: t.ID, DateKey: dateKey, Source: taskSource, TriggerTime: res.TriggerTime,
		}})
	}
	return nil
}

// CancelAlarm drops the (task, date) alarm. Idempotent: cancelling an alarm
// that was never scheduled reports "nothing to cancel", not an error.
func (s *Scheduler) CancelAlarm(ctx context.Context, taskID, dateKey string) bool {
	res, err := bridge.Call(ctx, s.log, "cancel_alarm", s.opt, func(ctx context.Context) (bridge.CancelResult, error) {
		return s.bridge.CancelAlarm(ctx, taskID, dateKey)
	})

	s.mu.Lock()
	delete(s.handles, handleKey(taskID, dateKey))
	s.mu.Unlock()

	if s.store != nil {
		if derr := s.store.DeleteScheduledAlarm(ctx, taskID, dateKey); derr != nil {
			s.log.Warn("alarm mirror delete failed", logx.String("task", taskID), logx.Err(derr))
		}
	}
	if err != nil {
		if !errors.Is(err, bridge.ErrUnavailable) {
			s.log.Debug("alarm cancel degraded", logx.String("task", taskID), logx.Err(err))
		}
		return false
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeAlarmCancelled, Data: eventbus.AlarmEvent{
			TaskID: taskID, DateKey: dateKey, Source: taskSource,
		}})
	}
	return res.Success
}

// CancelAllAlarmsForTask drops every alarm for the task. Idempotent.
func (s *Scheduler) CancelAllAlarmsForTask(ctx context.Context, taskID string) int {
	res, err := bridge.Call(ctx, s.log, "cancel_all", s.opt, func(ctx context.Context) (bridge.CancelAllResult, error) {
		return s.bridge.CancelAllAlarmsForTask(ctx, taskID)
	})

	prefix := taskID + "|"
	s.mu.Lock()
	for k := range s.handles {
		if strings.HasPrefix(k, prefix) {
			delete(s.handles, k)
		}
	}
	s.mu.Unlock()

	if s.store != nil {
		if _, derr := s.store.DeleteScheduledAlarmsForTask(ctx, taskID); derr != nil {
			s.log.Warn("alarm mirror delete failed", logx.String("task", taskID), logx.Err(derr))
		}
	}
	if err != nil {
		if !errors.Is(err, bridge.ErrUnavailable) {
			s.log.Debug("cancel-all degraded", logx.String("task", taskID), logx.Err(err))
		}
		return 0
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeAlarmCancelled, Data: eventbus.AlarmEvent{
			TaskID: taskID, Source: taskSource,
		}})
	}
	return res.CancelledCount
}

// RescheduleTaskAlarms is the canonical update path after any task mutation.
//
// It always cancels every existing alarm for the task first, re-fetches the
// current record, stops there if the task no longer qualifies, and otherwise
// rebuilds one alarm per due date over the next lookAhead days. Full
// cancel-and-rebuild, never an incremental patch: redundant native calls are
// an accepted cost for the guarantee that no stale alarm survives an edit.
func (s *Scheduler) RescheduleTaskAlarms(ctx context.Context, taskID string, lookAhead int) (Report, error) {
	var report Report

	s.CancelAllAlarmsForTask(ctx, taskID)

	t, ok, err := s.repo.Task(ctx, taskID)
	if err != nil {
		return report, err
	}
	if !ok || !t.SchedulingEligible() {
		// Deleted or no longer qualifying: cancellation was the whole job.
		s.log.Debug("task not rescheduled", logx.String("task", taskID), logx.Bool("exists", ok))
		return report, nil
	}

	if lookAhead <= 0 {
		lookAhead = 7
	}
	start := s.now()
	for _, date := range recurrence.DueDates(t, start, lookAhead) {
		res := TaskResult{TaskID: t.ID, Title: t.Title, DateKey: recurrence.DateKey(date)}
		if err := s.ScheduleAlarmForTask(ctx, t, date); err != nil {
			res.Status = StatusFailed
			res.Reason = err.Error()
		} else {
			res.Status = StatusScheduled
		}
		report.add(res)
	}
	return report, nil
}

// PermissionStatus surfaces the exact-alarm capability state for the UI.
func (s *Scheduler) PermissionStatus(ctx context.Context) (bridge.PermissionStatus, error) {
	return bridge.Call(ctx, s.log, "check_permission", s.opt, func(ctx context.Context) (bridge.PermissionStatus, error) {
		return s.bridge.CheckExactAlarmPermission(ctx)
	})
}
