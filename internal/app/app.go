// Package app wires the blockd subsystems together.
//
// Everything is explicitly constructed and dependency-injected here; there
// are no package-level singletons. One App owns one user session.
package app

import (
	"context"
	"sync"
	"time"

	"blockd/internal/alarm"
	"blockd/internal/bridge"
	"blockd/internal/config"
	"blockd/internal/enforce"
	"blockd/internal/eventbus"
	"blockd/internal/storage"
	logx "blockd/pkg/logx"
)

// selfPackage is the host app's own identifier, exempt from blocking.
const selfPackage = "dev.blockd.app"

// Bridges carries the native bridge implementations. Nil fields degrade the
// corresponding subsystem to inert no-ops.
type Bridges struct {
	Alarm       bridge.AlarmBridge
	Enforcement bridge.EnforcementBridge
}

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	bus    eventbus.Bus
	store  storage.Store
	sched  *alarm.Scheduler
	facade *alarm.Service
	custom *alarm.CustomManager
	engine *enforce.Engine

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string, br Bridges) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	mgr.SetLogger(log)

	storeCfg := storage.Config{Driver: "memory"}
	if cfg.Storage != nil {
		busy, _ := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
		storeCfg = storage.Config{Driver: cfg.Storage.Driver, Path: cfg.Storage.Path, BusyTimeout: busy}
	}
	store, err := storage.Open(storeCfg, log)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	if store == nil {
		store = storage.NewMemory()
	}

	bus := eventbus.New()
	callOpt := bridge.CallOptions{
		Timeout:  cfg.Alarms.ResolvedBridgeTimeout(),
		RetryMax: cfg.Alarms.ResolvedRetryMax(),
	}

	sched := alarm.NewScheduler(store, br.Alarm, store, bus, log, callOpt)
	facade := alarm.NewService(sched, bus, log, cfg.Alarms.ResolvedLookAhead(), cfg.Alarms.Timezone)
	custom := alarm.NewCustomManager(br.Alarm, store, log, callOpt)

	policy := enforce.NewPolicy(selfPackage, cfg.Enforce.AllowedApps, cfg.Enforce.AllowedPrefixes)
	engine := enforce.New(store, br.Enforcement, policy, bus, log, enforce.Config{
		UserID:     cfg.Alarms.UserID,
		IdlePoll:   cfg.Enforce.ResolvedIdlePoll(),
		ActivePoll: cfg.Enforce.ResolvedActivePoll(),
	}, callOpt)

	return &App{
		cfgMgr: mgr,
		logSvc: logSvc,
		log:    log,
		bus:    bus,
		store:  store,
		sched:  sched,
		facade: facade,
		custom: custom,
		engine: engine,
	}, nil
}

// Bus exposes the event bus so the host shell can publish foreground
// transitions and observe alarm/enforcement events.
func (a *App) Bus() eventbus.Bus { return a.bus }

// Alarms exposes the facade for task-mutation call sites.
func (a *App) Alarms() *alarm.Service { return a.facade }

// CustomAlarms exposes the standalone alarm manager.
func (a *App) CustomAlarms() *alarm.CustomManager { return a.custom }

// Store exposes the persistence layer (the UI layer's write side).
func (a *App) Store() storage.Store { return a.store }

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgMgr.Get()

	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	if err := a.facade.Initialize(runCtx, cfg.Alarms.UserID); err != nil {
		cancel()
		return err
	}
	if cfg.Enforce.Enabled {
		a.engine.Start(runCtx)
	}

	// Hot reload: watch the config file and re-apply what can change live.
	sub := a.cfgMgr.Subscribe(2)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgMgr.Watch(runCtx)
	}()
	go func() {
		defer a.wg.Done()
		defer a.cfgMgr.Unsubscribe(sub)
		old := cfg
		for {
			select {
			case <-runCtx.Done():
				return
			case next, ok := <-sub:
				if !ok || next == nil {
					return
				}
				a.applyConfig(old, next)
				old = next
			}
		}
	}()

	a.log.Info("started",
		logx.Bool("enforce", cfg.Enforce.Enabled),
		logx.Int("look_ahead_days", cfg.Alarms.ResolvedLookAhead()),
	)
	return nil
}

func (a *App) applyConfig(old, next *config.Config) {
	changed, attrs := config.SummarizeConfigChange(old, next)
	if len(changed) == 0 {
		return
	}
	a.log.Info("config reloaded", append([]logx.Field{logx.Any("sections", changed)}, attrs...)...)

	a.logSvc.Apply(logx.Config{
		Level:   next.Logging.Level,
		Console: next.Logging.Console,
		File:    logx.FileConfig{Enabled: next.Logging.File.Enabled, Path: next.Logging.File.Path},
	})
	a.engine.Apply(enforce.Config{
		UserID:     next.Alarms.UserID,
		IdlePoll:   next.Enforce.ResolvedIdlePoll(),
		ActivePoll: next.Enforce.ResolvedActivePoll(),
	})
}

func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.engine.Stop()
		a.facade.Close()
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("stopped")
	return a.logSvc.Close()
}
