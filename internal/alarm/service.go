package alarm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"blockd/internal/eventbus"
	"blockd/internal/task"
	logx "blockd/pkg/logx"
)

// Service owns the scheduler lifecycle and the foreground-reconciliation
// policy.
//
// Every foreground transition re-runs the today pass; that compensates for
// clock drift, timezone changes, and alarms the OS dropped while the host
// was backgrounded. The 7-day look-ahead is NOT re-run on every transition
// (cost control); it runs at Initialize, RefreshAllAlarms, and the midnight
// rollover.
type Service struct {
	log       logx.Logger
	sched     *Scheduler
	bus       eventbus.Bus
	lookAhead int
	loc       *time.Location

	mu     sync.Mutex
	c      *cron.Cron
	unsub  func()
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(sched *Scheduler, bus eventbus.Bus, log logx.Logger, lookAhead int, tz string) *Service {
	loc := time.Local
	if s := strings.TrimSpace(tz); s != "" {
		if l, err := time.LoadLocation(s); err == nil {
			loc = l
		} else {
			log.Warn("invalid timezone; falling back to Local", logx.String("tz", s), logx.Err(err))
		}
	}
	if lookAhead <= 0 {
		lookAhead = 7
	}
	return &Service{
		log:       log.With(logx.String("svc", "alarm_service")),
		sched:     sched,
		bus:       bus,
		lookAhead: lookAhead,
		loc:       loc,
	}
}

// Initialize binds the user session, runs the full today + look-ahead pass,
// and begins reacting to foreground transitions and the midnight rollover.
func (s *Service) Initialize(ctx context.Context, userID string) error {
	s.sched.Initialize(userID)

	if report, err := s.sched.ScheduleTodayAlarms(ctx); err != nil {
		// Scheduling failures are retried on the next foreground transition;
		// initialization itself still succeeds.
		s.log.Warn("initial today pass failed", logx.Err(err))
	} else {
		s.log.Info("today alarms scheduled",
			logx.Int("scheduled", report.Scheduled),
			logx.Int("total", report.Total),
		)
	}
	if _, err := s.sched.ScheduleUpcomingAlarms(ctx, s.lookAhead); err != nil {
		s.log.Warn("look-ahead pass failed", logx.Err(err))
	}

	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		cancel()
		return nil // already monitoring
	}
	s.cancel = cancel

	// Date keys roll over at local midnight; re-run the today pass then so
	// the new day's alarms exist without waiting for a foreground event.
	s.c = cron.New(cron.WithLocation(s.loc))
	_, err := s.c.AddFunc("0 0 * * *", func() {
		s.log.Debug("midnight rollover")
		if _, err := s.sched.ScheduleTodayAlarms(runCtx); err != nil {
			s.log.Warn("rollover today pass failed", logx.Err(err))
		}
		if _, err := s.sched.ScheduleUpcomingAlarms(runCtx, s.lookAhead); err != nil {
			s.log.Warn("rollover look-ahead failed", logx.Err(err))
		}
	})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.c.Start()

	if s.bus != nil {
		events, unsub := s.bus.Subscribe(8)
		s.unsub = unsub
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.watchForeground(runCtx, events)
		}()
	}
	s.mu.Unlock()

	return nil
}

func (s *Service) watchForeground(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != eventbus.TypeForeground {
				continue
			}
			report, err := s.sched.ScheduleTodayAlarms(ctx)
			if err != nil {
				s.log.Warn("foreground reconcile failed", logx.Err(err))
				continue
			}
			s.log.Debug("foreground reconcile",
				logx.Int("scheduled", report.Scheduled),
				logx.Int("total", report.Total),
			)
		}
	}
}

// ScheduleTaskAlarms is the create/update hook from task-mutation call
// sites. No-op when the task doesn't require alarms (after cancelling
// whatever it had before the edit).
func (s *Service) ScheduleTaskAlarms(ctx context.Context, t task.Task) error {
	_, err := s.sched.RescheduleTaskAlarms(ctx, t.ID, s.lookAhead)
	return err
}

// CancelTaskAlarms is the delete hook.
func (s *Service) CancelTaskAlarms(ctx context.Context, taskID string) {
	s.sched.CancelAllAlarmsForTask(ctx, taskID)
}

// RefreshAllAlarms rebuilds everything from scratch. Used after app updates
// or device reboot, where the native registry is assumed wiped.
func (s *Service) RefreshAllAlarms(ctx context.Context, userID string) error {
	s.sched.Initialize(userID)
	if _, err := s.sched.ScheduleTodayAlarms(ctx); err != nil {
		return err
	}
	_, err := s.sched.ScheduleUpcomingAlarms(ctx, s.lookAhead)
	return err
}

// Close stops foreground monitoring and the rollover entry. Already
// scheduled native alarms are left in place; they survive process teardown.
func (s *Service) Close() {
	s.mu.Lock()
	cancel := s.cancel
	unsub := s.unsub
	c := s.c
	s.cancel = nil
	s.unsub = nil
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	if cancel != nil {
		cancel()
	}
	if unsub != nil {
		unsub()
	}
	s.wg.Wait()
}
