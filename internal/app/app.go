package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"autopost/internal/config"
	"autopost/internal/dispatcher"
	"autopost/internal/health"
	rtsup "autopost/internal/runtime/supervisor"
	"autopost/internal/storage"
	kit "autopost/internal/transport"
	"autopost/internal/transport/telegram"
	"autopost/internal/wizard"
	logx "autopost/pkg/logx"
)

// App wires the bot together: config, logging, store, telegram adapter,
// conversation wizard, dispatcher, health endpoint, and the update router.
type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	adapter *telegram.Adapter
	wiz     *wizard.Manager
	disp    *dispatcher.Service
	health  *health.Service
	router  *Router

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	token := strings.TrimSpace(cfg.Telegram.Token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("BOT_TOKEN"))
	}
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	sessionTTL, err := config.ParseDurationOrDefault("wizard.session_ttl", cfg.Wizard.SessionTTL, 30*time.Minute)
	if err != nil {
		return nil, err
	}
	wiz := wizard.New(store, adapter, log.With(logx.String("comp", "wizard")),
		wizard.WithSessionTTL(sessionTTL))

	disp, err := dispatcher.New(dispatcher.Config{
		Enabled:    cfg.Scheduler.Enabled,
		Timezone:   cfg.Scheduler.Timezone,
		CronSpec:   cfg.Scheduler.CronSpec,
		RatePerSec: cfg.Scheduler.RatePerSec,
	}, store, adapter, log.With(logx.String("comp", "dispatcher")))
	if err != nil {
		return nil, err
	}

	hs := health.New(health.Config{
		Enabled: cfg.Health.Enabled,
		Addr:    cfg.Health.Addr,
	}, log.With(logx.String("comp", "health")))

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		store:   store,
		adapter: adapter,
		wiz:     wiz,
		disp:    disp,
		health:  hs,
		router:  NewRouter(adapter, store, wiz, log.With(logx.String("comp", "router"))),
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
		if _, err := config.ParseDurationField("wizard.session_ttl", cfg.Wizard.SessionTTL); err != nil {
			return err
		}
		if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
			}
		}
		if cfg.Scheduler.RatePerSec < 0 {
			return fmt.Errorf("scheduler.rate_per_sec must be >= 0")
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if a.disp.Enabled() {
		a.disp.Start(a.sup.Context())
	}
	if a.health.Enabled() {
		a.health.Start(a.sup.Context())
	}

	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	// Abandoned wizard sessions expire instead of growing without bound.
	a.sup.Go0("wizard.prune", func(c context.Context) {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-ticker.C:
				if n := a.wiz.Prune(time.Now()); n > 0 {
					a.log.Debug("stale wizard sessions pruned", logx.Int("count", n))
				}
			}
		}
	})

	// Config hot-reload fan-out. Logging applies live; the rest of the
	// config binds at startup, so changes there get a restart warning.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
				})
				a.log.Info("config reloaded (logging applied; other sections need a restart)")
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	// Best effort; a no-op outside systemd.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Bound each shutdown step so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context)) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			fn(stepCtx)
		}()
		select {
		case <-done:
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("dispatcher", 2*time.Second, func(c context.Context) { a.disp.Stop(c) })
	step("adapter", 2*time.Second, func(c context.Context) { _ = a.adapter.Stop(c) })
	step("health", time.Second, func(c context.Context) { a.health.Stop(c) })
	step("storage", time.Second, func(c context.Context) {
		if err := a.store.Close(); err != nil {
			a.log.Warn("store close error", logx.Err(err))
		}
	})
	step("supervisor", 2*time.Second, func(c context.Context) { _ = a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
