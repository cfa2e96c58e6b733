package alarm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"blockd/internal/bridge"
	"blockd/internal/recurrence"
	"blockd/internal/timewindow"
	logx "blockd/pkg/logx"
)

const customSource = "custom_alarms"

// CustomManager manages user-authored standalone alarms. One instance per
// active user session; state is its own, injected dependencies only.
type CustomManager struct {
	log    logx.Logger
	bridge bridge.AlarmBridge
	store  Store // may be nil
	opt    bridge.CallOptions
	now    func() time.Time

	mu       sync.Mutex
	triggers map[string]time.Time // id -> last scheduled trigger (best-effort cache)
}

func NewCustomManager(b bridge.AlarmBridge, store Store, log logx.Logger, opt bridge.CallOptions) *CustomManager {
	if b == nil {
		b = bridge.InertAlarm{}
	}
	return &CustomManager{
		log:      log.With(logx.String("svc", "custom_alarms")),
		bridge:   b,
		store:    store,
		opt:      opt,
		now:      time.Now,
		triggers: map[string]time.Time{},
	}
}

// SetNow overrides the clock. Test hook.
func (m *CustomManager) SetNow(now func() time.Time) { m.now = now }

// validate rejects malformed alarms before any bridge call.
func validateCustom(a CustomAlarm) error {
	if _, err := timewindow.ParseClock(a.Time); err != nil {
		return bridge.Validation("time", err.Error())
	}
	for _, d := range a.Days {
		if d < 0 || d > 6 {
			return bridge.Validation("days", "weekday out of range 0..6")
		}
	}
	switch a.Tone.Type {
	case "", bridge.ToneDefault:
	case bridge.ToneCustom:
		if strings.TrimSpace(a.Tone.URI) == "" {
			return bridge.Validation("tone.uri", "custom tone requires a uri")
		}
	default:
		return bridge.Validation("tone.type", "unknown tone type")
	}
	return nil
}

// Schedule validates the alarm, forwards it to the native bridge with its
// tone metadata, and records the resulting trigger time. Returns the trigger
// the alarm was registered for.
func (m *CustomManager) Schedule(ctx context.Context, a CustomAlarm) (time.Time, error) {
	a.ID = strings.TrimSpace(a.ID)
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.UserID = strings.TrimSpace(a.UserID)
	if a.UserID == "" {
		return time.Time{}, bridge.Validation("user_id", "required")
	}
	if err := validateCustom(a); err != nil {
		return time.Time{}, err
	}

	trigger := m.NextTrigger(a.Time, a.Days)

	toneType := a.Tone.Type
	if toneType == "" {
		toneType = bridge.ToneDefault
	}
	req := bridge.ScheduleRequest{
		TaskID:    a.ID,
		Title:     a.Label,
		StartTime: a.Time,
		Source:    customSource,
		DateKey:   recurrence.DateKey(trigger),
		ToneType:  toneType,
		ToneURI:   a.Tone.URI,
		ToneName:  a.Tone.Name,
	}
	res, err := bridge.Call(ctx, m.log, "schedule_custom", m.opt, func(ctx context.Context) (bridge.ScheduleResult, error) {
		return m.bridge.ScheduleAlarm(ctx, req)
	})
	if err != nil {
		return time.Time{}, err
	}
	if !res.TriggerTime.IsZero() {
		trigger = res.TriggerTime
	}

	m.mu.Lock()
	m.triggers[a.ID] = trigger
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.PutCustomAlarm(ctx, a); err != nil {
			m.log.Warn("custom alarm persist failed", logx.String("id", a.ID), logx.Err(err))
		}
	}

	m.log.Debug("custom alarm scheduled",
		logx.String("id", a.ID),
		logx.Time("trigger", trigger),
		logx.Int("days", len(a.Days)),
	)
	return trigger, nil
}

// Cancel asks the bridge to drop the alarm and removes the tracking entry
// regardless of the bridge outcome; tracking must never outlive a cancel
// attempt. Returns whether the bridge acknowledged the cancel.
func (m *CustomManager) Cancel(ctx context.Context, id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}

	res, err := bridge.Call(ctx, m.log, "cancel_custom", m.opt, func(ctx context.Context) (bridge.CancelResult, error) {
		return m.bridge.CancelAlarm(ctx, id, "")
	})

	m.mu.Lock()
	delete(m.triggers, id)
	m.mu.Unlock()

	if m.store != nil {
		if derr := m.store.DeleteCustomAlarm(ctx, id); derr != nil {
			m.log.Warn("custom alarm delete failed", logx.String("id", id), logx.Err(derr))
		}
	}

	if err != nil {
		m.log.Debug("custom alarm cancel degraded", logx.String("id", id), logx.Err(err))
		return false
	}
	return res.Success
}

// SetEnabled re-derives the full alarm payload and re-schedules or cancels.
// Never a partial update: the bridge always sees the complete definition.
func (m *CustomManager) SetEnabled(ctx context.Context, id string, enabled bool, a CustomAlarm) (time.Time, error) {
	a.ID = strings.TrimSpace(id)
	a.Enabled = enabled
	if !enabled {
		m.Cancel(ctx, a.ID)
		if m.store != nil {
			if err := m.store.PutCustomAlarm(ctx, a); err != nil {
				m.log.Warn("custom alarm persist failed", logx.String("id", a.ID), logx.Err(err))
			}
		}
		return time.Time{}, nil
	}
	return m.Schedule(ctx, a)
}

// TrackedTrigger returns the cached trigger time for an alarm id.
func (m *CustomManager) TrackedTrigger(id string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.triggers[id]
	return t, ok
}

// NextTrigger computes the next wall-clock instant the alarm fires.
//
// With no weekday set: today at the given time if still in the future, else
// tomorrow. With a weekday set: the first upcoming day (today included, up to
// a week out) whose weekday matches and whose time has not yet passed. The
// scan is exhaustive for any non-empty set, so the one-minute fallback should
// be unreachable; it exists so bad data degrades instead of throwing.
func (m *CustomManager) NextTrigger(clock string, days []int) time.Time {
	now := m.now()
	minute, err := timewindow.ParseClock(clock)
	if err != nil {
		m.log.Warn("custom alarm time unparsable", logx.String("time", clock), logx.Err(err))
	}
	h, mm := minute/60, minute%60

	at := func(day time.Time) time.Time {
		y, mo, d := day.Date()
		return time.Date(y, mo, d, h, mm, 0, 0, now.Location())
	}

	if len(days) == 0 {
		t := at(now)
		if t.After(now) {
			return t
		}
		return t.AddDate(0, 0, 1)
	}

	set := map[int]bool{}
	for _, d := range days {
		set[d] = true
	}
	for i := 0; i <= 7; i++ {
		day := now.AddDate(0, 0, i)
		if !set[int(day.Weekday())] {
			continue
		}
		t := at(day)
		if i == 0 && !t.After(now) {
			continue
		}
		return t
	}
	// Defensive: a populated set always matches within 7 days.
	return now.Add(time.Minute)
}
