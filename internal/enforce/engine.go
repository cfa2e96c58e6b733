package enforce

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"blockd/internal/bridge"
	"blockd/internal/eventbus"
	"blockd/internal/task"
	"blockd/internal/timewindow"
	logx "blockd/pkg/logx"
)

// State is the engine's monitoring regime.
type State int

const (
	// Idle: zero block-time-eligible tasks exist; no polling at all.
	Idle State = iota
	// MinimalMonitoring: eligible tasks exist but no window is active.
	MinimalMonitoring
	// FullMonitoring: at least one window is currently active.
	FullMonitoring
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case MinimalMonitoring:
		return "minimal"
	case FullMonitoring:
		return "full"
	}
	return "unknown"
}

// Config tunes the two polling regimes.
type Config struct {
	UserID     string
	IdlePoll   time.Duration // minimal-monitoring cadence (default 5m)
	ActivePoll time.Duration // full-monitoring cadence (default 2m)
}

func (c Config) withDefaults() Config {
	if c.IdlePoll <= 0 {
		c.IdlePoll = 5 * time.Minute
	}
	if c.ActivePoll <= 0 {
		c.ActivePoll = 2 * time.Minute
	}
	return c
}

// Engine polls the task repository, evaluates block-time windows against the
// wall clock, and starts/stops enforcement through the bridge.
//
// One cancellable ticker exists per run; regime changes swap its period
// instead of clearing and recreating timers ad hoc.
type Engine struct {
	log    logx.Logger
	repo   task.Repository
	bridge bridge.EnforcementBridge
	policy *Policy
	bus    eventbus.Bus
	opt    bridge.CallOptions
	now    func() time.Time

	// fallbackLimit paces the app-by-app fallback path so a device with
	// hundreds of packages doesn't get a burst of bridge calls each tick.
	fallbackLimit *rate.Limiter

	mu       sync.Mutex
	cfg      Config
	state    State
	blocking bool
	// blockingSynced flips once the flag has been seeded from the bridge.
	// Until then the in-memory value is a guess; a previous process may have
	// died with a block still active.
	blockingSynced bool
	cancel         context.CancelFunc
	wg             sync.WaitGroup
}

func New(repo task.Repository, b bridge.EnforcementBridge, policy *Policy, bus eventbus.Bus, log logx.Logger, cfg Config, opt bridge.CallOptions) *Engine {
	if b == nil {
		b = bridge.InertEnforcement{}
	}
	return &Engine{
		log:           log.With(logx.String("svc", "enforce")),
		repo:          repo,
		bridge:        b,
		policy:        policy,
		bus:           bus,
		opt:           opt,
		now:           time.Now,
		fallbackLimit: rate.NewLimiter(rate.Limit(10), 10),
		cfg:           cfg.withDefaults(),
		state:         Idle,
	}
}

// SetNow overrides the clock. Test hook.
func (e *Engine) SetNow(now func() time.Time) { e.now = now }

// State returns the current monitoring regime.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Apply updates poll cadences at runtime. Takes effect on the next tick.
func (e *Engine) Apply(cfg Config) {
	e.mu.Lock()
	e.cfg = cfg.withDefaults()
	e.mu.Unlock()
}

// ShouldBlockApp answers the per-app question while a window is active.
func (e *Engine) ShouldBlockApp(packageName string) bool {
	return e.policy.ShouldBlock(packageName)
}

// Start launches the polling loop. It returns immediately; the loop runs
// until ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(runCtx)
	}()
}

// Stop halts polling. Blocking is left as-is; a dying process must not be
// the thing that lifts an active block.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context) {
	// First evaluation happens immediately so startup doesn't wait a full
	// poll interval to notice an already-active window.
	e.tick(ctx)

	ticker := time.NewTicker(e.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
			ticker.Reset(e.pollInterval())
		}
	}
}

func (e *Engine) pollInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == FullMonitoring {
		return e.cfg.ActivePoll
	}
	// Idle keeps a slow ticker running purely to notice newly created
	// eligible tasks; cheap compared to a repository change feed.
	return e.cfg.IdlePoll
}

// tick recomputes eligible tasks and active windows, transitions the state
// machine, and re-applies the blocking decision.
func (e *Engine) tick(ctx context.Context) {
	e.mu.Lock()
	userID := e.cfg.UserID
	prev := e.state
	e.mu.Unlock()

	tasks, err := e.repo.Tasks(ctx, userID)
	if err != nil {
		e.log.Warn("task poll failed", logx.Err(err))
		return
	}

	eligible := 0
	active := 0
	now := e.now()
	for _, t := range tasks {
		if !t.SchedulingEligible() {
			continue
		}
		w, ok := t.Window()
		if !ok {
			continue
		}
		eligible++
		if timewindow.IsNowInRange(w.StartTime, w.EndTime, now) {
			active++
		}
	}

	var next State
	switch {
	case active > 0:
		next = FullMonitoring
	case eligible > 0:
		next = MinimalMonitoring
	default:
		next = Idle
	}

	e.mu.Lock()
	e.state = next
	e.mu.Unlock()

	if next != prev {
		e.log.Info("monitoring state changed",
			logx.String("from", prev.String()),
			logx.String("to", next.String()),
			logx.Int("eligible", eligible),
			logx.Int("active", active),
		)
		if e.bus != nil {
			e.bus.Publish(eventbus.Event{Type: eventbus.TypeEnforceState, Data: eventbus.StateEvent{
				From: prev.String(),
				To:   next.String(),
			}})
		}
	}

	e.applyBlocking(ctx, active > 0)
}

// applyBlocking drives the bridge toward the desired blocking state. When
// device-wide blocking is unavailable it falls back to per-app rules; a
// failure on one app is logged and the loop continues.
func (e *Engine) applyBlocking(ctx context.Context, want bool) {
	e.mu.Lock()
	have := e.blocking
	synced := e.blockingSynced
	e.mu.Unlock()

	// The in-memory flag starts false on every process start, but the native
	// side may still be blocking from a previous run. Seed from the bridge
	// before trusting the cache, otherwise a stale block would never be
	// lifted.
	if !synced {
		actual, err := bridge.Call(ctx, e.log, "is_blocking", e.opt, func(ctx context.Context) (bool, error) {
			return e.bridge.IsBlocking(ctx)
		})
		if err == nil {
			e.mu.Lock()
			e.blocking = actual
			e.blockingSynced = true
			e.mu.Unlock()
			have = actual
			if actual != want {
				e.log.Info("native blocking state reconciled",
					logx.Bool("native", actual),
					logx.Bool("want", want),
				)
			}
		}
	}
	if want == have {
		return
	}

	var err error
	if want {
		_, err = bridge.Call(ctx, e.log, "start_blocking", e.opt, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, e.bridge.StartBlocking(ctx)
		})
	} else {
		_, err = bridge.Call(ctx, e.log, "stop_blocking", e.opt, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, e.bridge.StopBlocking(ctx)
		})
	}

	if err == nil {
		e.mu.Lock()
		e.blocking = want
		e.blockingSynced = true
		e.mu.Unlock()
		e.log.Info("blocking state applied", logx.Bool("blocking", want))
		return
	}

	if errors.Is(err, bridge.ErrUnavailable) {
		if e.applyPerApp(ctx, want) {
			e.mu.Lock()
			e.blocking = want
			e.blockingSynced = true
			e.mu.Unlock()
		}
		return
	}
	e.log.Warn("blocking transition failed", logx.Bool("want", want), logx.Err(err))
}

// applyPerApp is the fallback: push a block/unblock rule to every installed
// non-exempt app individually. Returns whether at least one rule stuck.
func (e *Engine) applyPerApp(ctx context.Context, block bool) bool {
	apps, err := bridge.Call(ctx, e.log, "installed_apps", e.opt, func(ctx context.Context) ([]bridge.InstalledApp, error) {
		return e.bridge.InstalledApps(ctx)
	})
	if err != nil {
		if !errors.Is(err, bridge.ErrUnavailable) {
			e.log.Warn("installed app listing failed", logx.Err(err))
		}
		return false
	}

	rules := []bridge.AppRule{{StartTime: "00:00", EndTime: "23:59", Block: block}}
	applied := 0
	for _, app := range apps {
		if !e.policy.ShouldBlock(app.PackageName) {
			continue
		}
		if err := e.fallbackLimit.Wait(ctx); err != nil {
			return applied > 0
		}
		_, err := bridge.Call(ctx, e.log, "set_app_schedule", e.opt, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, e.bridge.SetAppSchedule(ctx, app.PackageName, rules)
		})
		if err != nil {
			// One bad app must not abort the rest of the tick.
			e.log.Warn("per-app rule failed", logx.String("pkg", app.PackageName), logx.Err(err))
			continue
		}
		applied++
	}
	e.log.Info("per-app fallback applied", logx.Int("apps", applied), logx.Bool("block", block))
	return applied > 0
}
