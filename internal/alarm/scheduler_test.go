package alarm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"blockd/internal/bridge"
	"blockd/internal/eventbus"
	"blockd/internal/task"
	logx "blockd/pkg/logx"
)

// fakeBridge records every call in order. Safe for concurrent use.
type fakeBridge struct {
	mu       sync.Mutex
	calls    []string // "schedule:<task>:<date>", "cancel:<task>:<date>", "cancelAll:<task>"
	requests []bridge.ScheduleRequest
	nextCode int64

	scheduleErr error
	failOnce    bool // scheduleErr applies to the first schedule only
}

func (f *fakeBridge) record(s string) {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	f.mu.Unlock()
}

func (f *fakeBridge) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBridge) CheckExactAlarmPermission(context.Context) (bridge.PermissionStatus, error) {
	return bridge.PermissionStatus{Granted: true, Required: true}, nil
}
func (f *fakeBridge) RequestExactAlarmPermission(context.Context) error { return nil }
func (f *fakeBridge) CheckOverlayPermission(context.Context) (bool, error) {
	return true, nil
}
func (f *fakeBridge) RequestOverlayPermission(context.Context) error { return nil }

func (f *fakeBridge) ScheduleAlarm(_ context.Context, req bridge.ScheduleRequest) (bridge.ScheduleResult, error) {
	f.record("schedule:" + req.TaskID + ":" + req.DateKey)
	f.mu.Lock()
	err := f.scheduleErr
	if f.failOnce {
		f.scheduleErr = nil
	}
	f.requests = append(f.requests, req)
	f.nextCode++
	code := f.nextCode
	f.mu.Unlock()
	if err != nil {
		return bridge.ScheduleResult{}, err
	}
	return bridge.ScheduleResult{Success: true, RequestCode: code}, nil
}

func (f *fakeBridge) CancelAlarm(_ context.Context, taskID, dateKey string) (bridge.CancelResult, error) {
	f.record("cancel:" + taskID + ":" + dateKey)
	return bridge.CancelResult{Success: true}, nil
}

func (f *fakeBridge) CancelAllAlarmsForTask(_ context.Context, taskID string) (bridge.CancelAllResult, error) {
	f.record("cancelAll:" + taskID)
	return bridge.CancelAllResult{Success: true, CancelledCount: 1}, nil
}

// fakeRepo serves a fixed task list.
type fakeRepo struct {
	tasks []task.Task
	err   error
}

func (r *fakeRepo) Tasks(_ context.Context, userID string) ([]task.Task, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]task.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeRepo) Task(_ context.Context, id string) (task.Task, bool, error) {
	if r.err != nil {
		return task.Task{}, false, r.err
	}
	for _, t := range r.tasks {
		if t.ID == id {
			return t, true, nil
		}
	}
	return task.Task{}, false, nil
}

func fastOpts() bridge.CallOptions {
	return bridge.CallOptions{Timeout: time.Second, RetryMax: 0}
}

func dailyTask(id, userID, startTime string) task.Task {
	return task.Task{
		ID:               id,
		UserID:           userID,
		Title:            "Task " + id,
		BlockTimeEnabled: true,
		EvaluationType:   task.EvalTimer,
		StartTime:        startTime,
		Frequency:        task.Frequency{Type: task.FreqDaily},
		StartDate:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC) // a Tuesday
}

func newTestScheduler(repo task.Repository, fb *fakeBridge) *Scheduler {
	s := NewScheduler(repo, fb, nil, nil, logx.Nop(), fastOpts())
	s.SetNow(fixedNow)
	s.Initialize("user-1")
	return s
}

func TestScheduleTodayAlarms(t *testing.T) {
	repo := &fakeRepo{tasks: []task.Task{
		dailyTask("a", "user-1", "09:00"),
		dailyTask("b", "user-1", "10:00"),
		dailyTask("other", "user-2", "09:00"),
	}}
	fb := &fakeBridge{}
	s := newTestScheduler(repo, fb)

	report, err := s.ScheduleTodayAlarms(context.Background())
	if err != nil {
		t.Fatalf("ScheduleTodayAlarms: %v", err)
	}
	if report.Scheduled != 2 || report.Total != 2 {
		t.Fatalf("report = %d/%d, want 2/2", report.Scheduled, report.Total)
	}
	for _, req := range fb.requests {
		if req.DateKey != "2024-03-12" {
			t.Fatalf("date key %q, want 2024-03-12", req.DateKey)
		}
		if req.Source != "tasks" {
			t.Fatalf("source %q, want tasks", req.Source)
		}
		if req.SnapshotJSON == "" {
			t.Fatalf("schedule request missing snapshot")
		}
	}
}

func TestScheduleCancelsBeforeCreate(t *testing.T) {
	repo := &fakeRepo{tasks: []task.Task{dailyTask("a", "user-1", "09:00")}}
	fb := &fakeBridge{}
	s := newTestScheduler(repo, fb)

	if _, err := s.ScheduleTodayAlarms(context.Background()); err != nil {
		t.Fatal(err)
	}
	calls := fb.callLog()
	if len(calls) != 2 {
		t.Fatalf("got calls %v, want cancel then schedule", calls)
	}
	if calls[0] != "cancel:a:2024-03-12" || calls[1] != "schedule:a:2024-03-12" {
		t.Fatalf("wrong call order: %v", calls)
	}
}

func TestScheduleSkipsTaskWithoutStartTime(t *testing.T) {
	noStart := dailyTask("a", "user-1", "")
	repo := &fakeRepo{tasks: []task.Task{noStart, dailyTask("b", "user-1", "09:00")}}
	fb := &fakeBridge{}
	s := newTestScheduler(repo, fb)

	report, err := s.ScheduleTodayAlarms(context.Background())
	if err != nil {
		t.Fatalf("a data gap must not fail the batch: %v", err)
	}
	if report.Scheduled != 1 || report.Total != 2 {
		t.Fatalf("report = %d/%d, want 1/2", report.Scheduled, report.Total)
	}
	var skipped *TaskResult
	for i := range report.Results {
		if report.Results[i].TaskID == "a" {
			skipped = &report.Results[i]
		}
	}
	if skipped == nil || skipped.Status != StatusSkipped {
		t.Fatalf("task without start time must be reported as skipped, got %+v", skipped)
	}
	for _, c := range fb.callLog() {
		if c == "schedule:a:2024-03-12" {
			t.Fatalf("task without start time must never reach the bridge")
		}
	}
}

func TestScheduleFailureDoesNotAbortBatch(t *testing.T) {
	repo := &fakeRepo{tasks: []task.Task{
		dailyTask("a", "user-1", "09:00"),
		dailyTask("b", "user-1", "10:00"),
	}}
	fb := &fakeBridge{scheduleErr: fmt.Errorf("ipc hiccup"), failOnce: true}
	s := newTestScheduler(repo, fb)

	report, err := s.ScheduleTodayAlarms(context.Background())
	if err != nil {
		t.Fatalf("per-task failures must not surface as a batch error: %v", err)
	}
	if report.Scheduled != 1 || report.Total != 2 {
		t.Fatalf("report = %d/%d, want 1/2", report.Scheduled, report.Total)
	}
	if len(report.Failed()) != 1 {
		t.Fatalf("want one failed result, got %d", len(report.Failed()))
	}
}

func TestScheduleUpcomingAlarms(t *testing.T) {
	// Due every 3 days from 2024-03-12 (a due date itself): next due dates
	// inside the 7-day upcoming window are 03-15 and 03-18.
	tk := dailyTask("a", "user-1", "09:00")
	tk.Frequency = task.Frequency{Type: task.FreqRepeat, EveryDays: 3}
	tk.StartDate = time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	repo := &fakeRepo{tasks: []task.Task{tk}}
	fb := &fakeBridge{}
	s := newTestScheduler(repo, fb)

	report, err := s.ScheduleUpcomingAlarms(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if report.Scheduled != 2 {
		t.Fatalf("scheduled %d, want 2", report.Scheduled)
	}
	var dates []string
	for _, req := range fb.requests {
		dates = append(dates, req.DateKey)
	}
	want := []string{"2024-03-15", "2024-03-18"}
	if len(dates) != len(want) {
		t.Fatalf("scheduled dates %v, want %v", dates, want)
	}
	for i := range want {
		if dates[i] != want[i] {
			t.Fatalf("scheduled dates %v, want %v", dates, want)
		}
	}
}

func TestSchedulePublishesAlarmEvents(t *testing.T) {
	repo := &fakeRepo{tasks: []task.Task{dailyTask("a", "user-1", "09:00")}}
	fb := &fakeBridge{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	s := NewScheduler(repo, fb, nil, bus, logx.Nop(), fastOpts())
	s.SetNow(fixedNow)
	s.Initialize("user-1")

	if _, err := s.ScheduleTodayAlarms(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Cancel-then-create surfaces on the bus too: first the cancel for the
	// (task, date) pair, then the schedule.
	next := func() eventbus.Event {
		t.Helper()
		select {
		case e := <-events:
			return e
		case <-time.After(time.Second):
			t.Fatalf("event never delivered")
			return eventbus.Event{}
		}
	}

	first := next()
	if first.Type != eventbus.TypeAlarmCancelled {
		t.Fatalf("first event %q, want %q", first.Type, eventbus.TypeAlarmCancelled)
	}
	second := next()
	if second.Type != eventbus.TypeAlarmScheduled {
		t.Fatalf("second event %q, want %q", second.Type, eventbus.TypeAlarmScheduled)
	}
	payload, ok := second.Data.(eventbus.AlarmEvent)
	if !ok {
		t.Fatalf("payload is %T, want eventbus.AlarmEvent", second.Data)
	}
	if payload.TaskID != "a" || payload.DateKey != "2024-03-12" || payload.Source != "tasks" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestCancelAlarmIdempotent(t *testing.T) {
	fb := &fakeBridge{}
	s := newTestScheduler(&fakeRepo{}, fb)

	if ok := s.CancelAlarm(context.Background(), "ghost", "2024-03-12"); !ok {
		t.Fatalf("cancelling a never-scheduled alarm must still succeed")
	}
	if ok := s.CancelAlarm(context.Background(), "ghost", "2024-03-12"); !ok {
		t.Fatalf("repeat cancel must stay benign")
	}
}

func TestRescheduleTaskAlarms(t *testing.T) {
	tk := dailyTask("a", "user-1", "09:00")
	repo := &fakeRepo{tasks: []task.Task{tk}}
	fb := &fakeBridge{}
	s := newTestScheduler(repo, fb)

	report, err := s.RescheduleTaskAlarms(context.Background(), "a", 3)
	if err != nil {
		t.Fatal(err)
	}
	if report.Scheduled != 3 {
		t.Fatalf("scheduled %d, want one per due date", report.Scheduled)
	}
	calls := fb.callLog()
	if len(calls) == 0 || calls[0] != "cancelAll:a" {
		t.Fatalf("reschedule must cancel everything first, got %v", calls)
	}

	// Running it again produces the same result; the cancel-and-rebuild is
	// idempotent from the caller's perspective.
	report2, err := s.RescheduleTaskAlarms(context.Background(), "a", 3)
	if err != nil {
		t.Fatal(err)
	}
	if report2.Scheduled != report.Scheduled || report2.Total != report.Total {
		t.Fatalf("second run report %d/%d differs from first %d/%d",
			report2.Scheduled, report2.Total, report.Scheduled, report.Total)
	}
}

func TestRescheduleDeletedTaskOnlyCancels(t *testing.T) {
	fb := &fakeBridge{}
	s := newTestScheduler(&fakeRepo{}, fb)

	report, err := s.RescheduleTaskAlarms(context.Background(), "gone", 7)
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 0 {
		t.Fatalf("deleted task must schedule nothing, got %+v", report)
	}
	calls := fb.callLog()
	if len(calls) != 1 || calls[0] != "cancelAll:gone" {
		t.Fatalf("want a single cancel-all, got %v", calls)
	}
}

func TestRescheduleIneligibleTaskOnlyCancels(t *testing.T) {
	tk := dailyTask("a", "user-1", "09:00")
	tk.BlockTimeEnabled = false
	fb := &fakeBridge{}
	s := newTestScheduler(&fakeRepo{tasks: []task.Task{tk}}, fb)

	report, err := s.RescheduleTaskAlarms(context.Background(), "a", 7)
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 0 {
		t.Fatalf("ineligible task must schedule nothing, got %+v", report)
	}
}

func TestScheduleSurfacesRepoError(t *testing.T) {
	repoErr := errors.New("db locked")
	s := newTestScheduler(&fakeRepo{err: repoErr}, &fakeBridge{})

	if _, err := s.ScheduleTodayAlarms(context.Background()); !errors.Is(err, repoErr) {
		t.Fatalf("got %v, want the repository error", err)
	}
}

func TestSnapshotCarriesTaskFields(t *testing.T) {
	tk := dailyTask("a", "user-1", "09:00")
	tk.IntervalMinutes = 30
	tk.DurationMinutes = 60
	repo := &fakeRepo{tasks: []task.Task{tk}}
	fb := &fakeBridge{}
	s := newTestScheduler(repo, fb)

	if _, err := s.ScheduleTodayAlarms(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(fb.requests) != 1 {
		t.Fatalf("want one schedule request, got %d", len(fb.requests))
	}
	var snap map[string]any
	if err := json.Unmarshal([]byte(fb.requests[0].SnapshotJSON), &snap); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if snap["task_id"] != "a" {
		t.Fatalf("snapshot task_id = %v", snap["task_id"])
	}
	if snap["start_time"] != "09:00" {
		t.Fatalf("snapshot start_time = %v", snap["start_time"])
	}
}
