package storage

import (
	"context"
	"testing"
	"time"

	"blockd/internal/alarm"
	"blockd/internal/task"
	logx "blockd/pkg/logx"
)

func TestMemoryTasks(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	a := task.Task{ID: "a", UserID: "u1", Title: "first"}
	b := task.Task{ID: "b", UserID: "u2", Title: "second"}
	if err := m.UpsertTask(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := m.UpsertTask(ctx, b); err != nil {
		t.Fatal(err)
	}

	got, err := m.Tasks(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("Tasks(u1) = %+v", got)
	}

	a.Title = "renamed"
	if err := m.UpsertTask(ctx, a); err != nil {
		t.Fatal(err)
	}
	cur, ok, err := m.Task(ctx, "a")
	if err != nil || !ok || cur.Title != "renamed" {
		t.Fatalf("Task(a) = %+v, %v, %v", cur, ok, err)
	}

	if err := m.DeleteTask(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := m.Task(ctx, "a"); ok {
		t.Fatalf("deleted task still present")
	}
}

func TestMemoryScheduledAlarmMirror(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	put := func(taskID, dateKey string) {
		t.Helper()
		err := m.PutScheduledAlarm(ctx, alarm.ScheduledAlarm{
			TaskID:      taskID,
			DateKey:     dateKey,
			TriggerTime: time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC),
			RequestCode: 1,
			Source:      "tasks",
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	put("a", "2024-03-12")
	put("a", "2024-03-13")
	put("b", "2024-03-12")

	recs, err := m.ScheduledAlarmsForTask(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d mirror rows for a, want 2", len(recs))
	}

	if err := m.DeleteScheduledAlarm(ctx, "a", "2024-03-12"); err != nil {
		t.Fatal(err)
	}
	recs, _ = m.ScheduledAlarmsForTask(ctx, "a")
	if len(recs) != 1 || recs[0].DateKey != "2024-03-13" {
		t.Fatalf("after delete: %+v", recs)
	}

	n, err := m.DeleteScheduledAlarmsForTask(ctx, "a")
	if err != nil || n != 1 {
		t.Fatalf("DeleteScheduledAlarmsForTask = %d, %v", n, err)
	}
	if recs, _ := m.ScheduledAlarmsForTask(ctx, "b"); len(recs) != 1 {
		t.Fatalf("sibling task rows must survive")
	}
}

func TestMemoryCustomAlarms(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	a := alarm.CustomAlarm{ID: "x", UserID: "u1", Time: "07:00", Enabled: true}
	if err := m.PutCustomAlarm(ctx, a); err != nil {
		t.Fatal(err)
	}
	got, ok, err := m.GetCustomAlarm(ctx, "x")
	if err != nil || !ok || got.Time != "07:00" {
		t.Fatalf("GetCustomAlarm = %+v, %v, %v", got, ok, err)
	}

	all, err := m.CustomAlarms(ctx, "u1")
	if err != nil || len(all) != 1 {
		t.Fatalf("CustomAlarms = %+v, %v", all, err)
	}
	if all, _ := m.CustomAlarms(ctx, "u2"); len(all) != 0 {
		t.Fatalf("user scoping broken: %+v", all)
	}

	if err := m.DeleteCustomAlarm(ctx, "x"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := m.GetCustomAlarm(ctx, "x"); ok {
		t.Fatalf("deleted custom alarm still present")
	}
}

func TestOpenDriverDispatch(t *testing.T) {
	store, err := Open(Config{}, logx.Nop())
	if err != nil || store != nil {
		t.Fatalf("empty driver must disable storage, got %v, %v", store, err)
	}

	store, err = Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || store != nil {
		t.Fatalf("driver none must disable storage, got %v, %v", store, err)
	}

	store, err = Open(Config{Driver: "memory"}, logx.Nop())
	if err != nil || store == nil {
		t.Fatalf("memory driver: %v, %v", store, err)
	}

	if _, err := Open(Config{Driver: "bolt"}, logx.Nop()); err == nil {
		t.Fatalf("unknown driver must error")
	}
}
