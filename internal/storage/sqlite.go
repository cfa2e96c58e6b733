package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"blockd/internal/alarm"
	"blockd/internal/task"
	logx "blockd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

var _ Store = (*sqliteStore)(nil)

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- task.Repository ----

func (s *sqliteStore) Tasks(ctx context.Context, userID string) ([]task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM tasks WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var t task.Task
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			// One corrupt row must not hide the rest of the user's tasks.
			s.log.Warn("task row undecodable", logx.Err(err))
			continue
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Task(ctx context.Context, id string) (task.Task, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM tasks WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, false, nil
	}
	if err != nil {
		return task.Task{}, false, err
	}
	var t task.Task
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return task.Task{}, false, err
	}
	return t, true, nil
}

func (s *sqliteStore) UpsertTask(ctx context.Context, t task.Task) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks(id, user_id, payload) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET user_id=excluded.user_id, payload=excluded.payload`,
		t.ID, t.UserID, string(b),
	)
	return err
}

func (s *sqliteStore) DeleteTask(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return err
}

// ---- alarm mirror ----

func (s *sqliteStore) PutScheduledAlarm(ctx context.Context, rec alarm.ScheduledAlarm) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_alarms(task_id, date_key, trigger_at, request_code, source)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(task_id, date_key) DO UPDATE SET
		   trigger_at=excluded.trigger_at, request_code=excluded.request_code, source=excluded.source`,
		rec.TaskID, rec.DateKey, rec.TriggerTime.UnixMilli(), rec.RequestCode, rec.Source,
	)
	return err
}

func (s *sqliteStore) DeleteScheduledAlarm(ctx context.Context, taskID, dateKey string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_alarms WHERE task_id = ? AND date_key = ?`, taskID, dateKey)
	return err
}

func (s *sqliteStore) DeleteScheduledAlarmsForTask(ctx context.Context, taskID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_alarms WHERE task_id = ?`, taskID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqliteStore) ScheduledAlarmsForTask(ctx context.Context, taskID string) ([]alarm.ScheduledAlarm, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, date_key, trigger_at, request_code, source
		 FROM scheduled_alarms WHERE task_id = ?`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alarm.ScheduledAlarm
	for rows.Next() {
		var rec alarm.ScheduledAlarm
		var ms int64
		if err := rows.Scan(&rec.TaskID, &rec.DateKey, &ms, &rec.RequestCode, &rec.Source); err != nil {
			return nil, err
		}
		rec.TriggerTime = time.UnixMilli(ms)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ---- custom alarms ----

func (s *sqliteStore) PutCustomAlarm(ctx context.Context, a alarm.CustomAlarm) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO custom_alarms(id, user_id, payload) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET user_id=excluded.user_id, payload=excluded.payload`,
		a.ID, a.UserID, string(b),
	)
	return err
}

func (s *sqliteStore) GetCustomAlarm(ctx context.Context, id string) (alarm.CustomAlarm, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM custom_alarms WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return alarm.CustomAlarm{}, false, nil
	}
	if err != nil {
		return alarm.CustomAlarm{}, false, err
	}
	var a alarm.CustomAlarm
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return alarm.CustomAlarm{}, false, err
	}
	return a, true, nil
}

func (s *sqliteStore) DeleteCustomAlarm(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM custom_alarms WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) CustomAlarms(ctx context.Context, userID string) ([]alarm.CustomAlarm, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM custom_alarms WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alarm.CustomAlarm
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var a alarm.CustomAlarm
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			s.log.Warn("custom alarm row undecodable", logx.Err(err))
			continue
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
