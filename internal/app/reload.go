package app

import (
	"context"
	"slices"
	"strings"

	"azanbot/internal/config"
	"azanbot/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Keep only the newest config of a burst.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, last, next)
			last = next
		}
	}
}

// applyConfig pushes the live-reloadable parts of next into the running
// services. Storage and day_state changes need a restart.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs, sessions := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("app.config_reloaded_unchanged")
		return
	}

	a.logs.Apply(mapLogConfig(next))
	a.reminders.Apply(reminderSettings(next))
	a.remindersOn.Store(next.Reminder.Enabled)
	a.monitor.Apply(monitorSettings(next))

	if engCfg, err := mapTaskEngineConfig(next); err != nil {
		a.log.Warn("app.task_engine_invalid", logx.Err(err))
	} else {
		a.engine.Apply(ctx, engCfg)
	}

	if slices.Contains(sections, "destinations") {
		n := a.registry.Seed(ctx, next.Destinations)
		a.log.Info("app.destinations_seeded", logx.Int("count", n))
	}
	if slices.Contains(sections, "reminder") || slices.Contains(sections, "stats") {
		if err := a.scheduleJobs(next); err != nil {
			a.log.Warn("app.reschedule_failed", logx.Err(err))
		}
	}
	if len(sessions) > 0 {
		a.syncSessions(ctx, next, sessions)
	}
	for _, s := range next.ActiveSessions() {
		a.limited.Configure(s.ID, s.RatePerSec, s.Burst)
	}
	if slices.Contains(sections, "storage") || slices.Contains(sections, "day_state") {
		a.log.Warn("app.restart_required", logx.Strings("sections", sections))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("app.config_reloaded", fields...)
}
