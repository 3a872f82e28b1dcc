// Package app wires azanbot together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"azanbot/internal/clock"
	"azanbot/internal/commands"
	"azanbot/internal/config"
	"azanbot/internal/dispatch"
	"azanbot/internal/eventbus"
	"azanbot/internal/membership"
	"azanbot/internal/prayer"
	"azanbot/internal/registry"
	"azanbot/internal/reminder"
	"azanbot/internal/runtime/supervisor"
	"azanbot/internal/storage"
	"azanbot/internal/task/engine"
	"azanbot/internal/task/scheduler"
	"azanbot/internal/transport/telegram"
	"azanbot/pkg/logx"
)

const (
	tickJob  = "azan.tick"
	statsJob = "stats.daily"

	tickTimeout = 50 * time.Second
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	clk   *clock.Service

	prayers   *prayer.Engine
	registry  *registry.Registry
	transport *telegram.Gateway
	limited   *dispatch.Limited
	gw        dispatch.Gateway

	engine *engine.Service
	sched  *scheduler.Service

	ledger    reminder.Ledger
	reminders *reminder.Scheduler
	monitor   *membership.Monitor
	commands  *commands.Handler
	votes     *commands.VoteRecorder
	stats     *reminder.StatsReporter

	remindersOn atomic.Bool
}

// New loads the config and builds every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLogConfig(cfg), nil)
	log := root.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("app.storage_opened", logx.String("driver", sc.Driver))

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	bus := eventbus.New()
	clk := clock.New(clock.System)
	prayers := prayer.NewEngine(prayer.NewFileSource(cfg.Prayer.DataDir), clk, root)
	reg := registry.New(store, prayers, root)

	transport := telegram.NewGateway(root)
	limited := dispatch.NewLimited(transport)
	gw := dispatch.NewTracked(limited, store, root)
	logSvc.SetSink(limited)

	eng := engine.New(engCfg, root.With(logx.String("comp", "taskengine")), bus)
	sched := scheduler.New(scheduler.Config{Enabled: true, Location: clock.IST}, eng, root.With(logx.String("comp", "scheduler")), bus)

	a := &App{
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		clk:       clk,
		prayers:   prayers,
		registry:  reg,
		transport: transport,
		limited:   limited,
		gw:        gw,
		engine:    eng,
		sched:     sched,
	}

	a.ledger = reminder.NewMemoryLedger()
	if opt, ok := ledgerOptions(cfg); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rl, err := reminder.NewRedisLedger(ctx, opt)
		cancel()
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.ledger = rl
		log.Info("app.day_state", logx.String("driver", "redis"), logx.String("addr", opt.Addr))
	}

	a.reminders = reminder.New(reminder.Deps{
		Times:    prayers,
		Mappings: reg,
		Gateway:  gw,
		Clock:    clk,
		Tasks:    eng,
		Timers:   sched,
		Sessions: transport,
		Ledger:   a.ledger,
		Log:      root,
	})
	a.reminders.Apply(reminderSettings(cfg))
	a.remindersOn.Store(cfg.Reminder.Enabled)

	a.monitor = membership.New(membership.Deps{
		Mappings: reg,
		Gateway:  gw,
		Store:    store,
		Clock:    clk,
		Sessions: transport,
		Tasks:    eng,
		Log:      root,
	})
	a.monitor.Apply(monitorSettings(cfg))

	a.commands = commands.NewHandler(prayers, clk, gw, root)
	a.votes = commands.NewVoteRecorder(store, clk, root)
	a.stats = reminder.NewStatsReporter(store, clk, root)

	for _, s := range cfg.ActiveSessions() {
		if err := a.addSession(s); err != nil {
			log.Error("app.session_failed", logx.String("session", s.ID), logx.Err(err))
		}
	}
	return a, nil
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) validate(_ context.Context, cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapTaskEngineConfig(cfg); err != nil {
		return err
	}
	if st, err := os.Stat(cfg.Prayer.DataDir); err != nil || !st.IsDir() {
		return fmt.Errorf("prayer.data_dir %q is not a directory", cfg.Prayer.DataDir)
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)
	cfg := a.cfgm.Get()
	run := a.sup.Context()

	if err := a.prayers.Init(run); err != nil {
		return fmt.Errorf("load prayer index: %w", err)
	}
	n := a.registry.Seed(run, cfg.Destinations)
	a.log.Info("app.destinations_seeded", logx.Int("count", n))

	a.engine.Start(run)
	a.sched.Start(run)
	if err := a.scheduleJobs(cfg); err != nil {
		return err
	}

	a.sup.Go("reminder.watch", func(c context.Context) error { return a.reminders.Watch(c, a.bus) })
	a.sup.Go("monitor.watch", func(c context.Context) error { return a.monitor.Watch(c, a.bus) })
	a.sup.Go("votes.watch", func(c context.Context) error { return a.votes.Watch(c, a.bus) })

	started := a.transport.StartAll(run)
	a.log.Info("app.sessions_started", logx.Int("count", started), logx.Strings("active", a.transport.ActiveSessions()))

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Trace("app.event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.GoRestart("config.watch", func(c context.Context) error { return a.cfgm.Watch(c) },
		supervisor.WithRestartBackoff(time.Second, time.Minute),
		supervisor.WithMaxRestarts(5))

	a.log.Info("app.started")
	return nil
}

// scheduleJobs upserts the cron jobs for cfg. Re-running it replaces them.
func (a *App) scheduleJobs(cfg *config.Config) error {
	_, err := a.sched.AddCronOpt(tickJob, cfg.TickSpec(), tickTimeout,
		scheduler.TaskOptions{Overlap: engine.OverlapSkipIfRunning, RetryMax: -1},
		a.tick)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", tickJob, err)
	}
	if at, ok := statsAt(cfg); ok {
		if _, err := a.sched.AddDaily(statsJob, at, 30*time.Second, a.stats.Run); err != nil {
			return fmt.Errorf("schedule %s: %w", statsJob, err)
		}
	} else {
		a.sched.Remove(statsJob)
	}
	return nil
}

func (a *App) tick(ctx context.Context) error {
	var errs []error
	if a.remindersOn.Load() {
		errs = append(errs, a.reminders.Tick(ctx))
	}
	errs = append(errs, a.monitor.Tick(ctx))
	return errors.Join(errs...)
}

// Stop shuts down in order: transport, scheduler, engine, storage. Each step
// is bounded so one component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("app.stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("app.stop_step_skipped", logx.String("step", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("app.stop_step_failed", logx.String("step", name), logx.Err(err))
			}
			a.log.Debug("app.stop_step_done", logx.String("step", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("app.stop_step_deadline", logx.String("step", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("transport", 3*time.Second, func(c context.Context) error { a.transport.StopAll(c); return nil })
	step("scheduler", 2*time.Second, func(c context.Context) error {
		if n := a.sched.RemovePrefix("poll/"); n > 0 {
			a.log.Info("app.polls_cancelled", logx.Int("count", n))
		}
		a.sched.Stop(c)
		return nil
	})
	step("taskengine", 2*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("storage", time.Second, func(context.Context) error {
		var errs []error
		if rl, ok := a.ledger.(*reminder.RedisLedger); ok {
			errs = append(errs, rl.Close())
		}
		errs = append(errs, a.store.Close())
		return errors.Join(errs...)
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	cnt := a.sup.Counters()
	a.log.Info("app.stopped", logx.Int64("goroutines_left", cnt.Active), logx.Uint64("goroutines_started", cnt.Started))
	return a.logs.Close()
}
