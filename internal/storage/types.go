package storage

import (
	"context"
	"errors"
	"time"

	"blockd/internal/alarm"
	"blockd/internal/task"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "memory": in-process maps, lost on restart (tests, degraded mode)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the scheduling core. It covers the
// task repository read side plus the write side used by the UI layer, the
// custom alarm records, and the scheduled-alarm mirror.
type Store interface {
	task.Repository
	alarm.Store

	UpsertTask(ctx context.Context, t task.Task) error
	DeleteTask(ctx context.Context, id string) error

	Close() error
}
