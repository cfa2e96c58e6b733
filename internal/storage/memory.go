package storage

import (
	"context"
	"sync"

	"blockd/internal/alarm"
	"blockd/internal/task"
)

// Memory is the in-process store. It backs tests and the degraded mode when
// no sqlite path is configured.
type Memory struct {
	mu     sync.RWMutex
	tasks  map[string]task.Task
	custom map[string]alarm.CustomAlarm
	mirror map[string]alarm.ScheduledAlarm // taskID+"|"+dateKey
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		tasks:  map[string]task.Task{},
		custom: map[string]alarm.CustomAlarm{},
		mirror: map[string]alarm.ScheduledAlarm{},
	}
}

func (m *Memory) Close() error { return nil }

// ---- task.Repository ----

func (m *Memory) Tasks(_ context.Context, userID string) ([]task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) Task(_ context.Context, id string) (task.Task, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	return t, ok, nil
}

func (m *Memory) UpsertTask(_ context.Context, t task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *Memory) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

// ---- alarm mirror ----

func mirrorKey(taskID, dateKey string) string { return taskID + "|" + dateKey }

func (m *Memory) PutScheduledAlarm(_ context.Context, rec alarm.ScheduledAlarm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mirror[mirrorKey(rec.TaskID, rec.DateKey)] = rec
	return nil
}

func (m *Memory) DeleteScheduledAlarm(_ context.Context, taskID, dateKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mirror, mirrorKey(taskID, dateKey))
	return nil
}

func (m *Memory) DeleteScheduledAlarmsForTask(_ context.Context, taskID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, rec := range m.mirror {
		if rec.TaskID == taskID {
			delete(m.mirror, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) ScheduledAlarmsForTask(_ context.Context, taskID string) ([]alarm.ScheduledAlarm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []alarm.ScheduledAlarm
	for _, rec := range m.mirror {
		if rec.TaskID == taskID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ---- custom alarms ----

func (m *Memory) PutCustomAlarm(_ context.Context, a alarm.CustomAlarm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.custom[a.ID] = a
	return nil
}

func (m *Memory) GetCustomAlarm(_ context.Context, id string) (alarm.CustomAlarm, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.custom[id]
	return a, ok, nil
}

func (m *Memory) DeleteCustomAlarm(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.custom, id)
	return nil
}

func (m *Memory) CustomAlarms(_ context.Context, userID string) ([]alarm.CustomAlarm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []alarm.CustomAlarm
	for _, a := range m.custom {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}
