package config

import (
	"reflect"
	"sort"
	"strings"

	"azanbot/pkg/logx"
)

// SummarizeConfigChange returns (1) the changed top-level sections, (2) safe
// attrs for logging (tokens, passwords and DSNs are never included) and (3) the
// ids of sessions that were added, removed or changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	sessions := diffSessions(oldCfg.Sessions, newCfg.Sessions)
	if len(sessions) > 0 {
		changed = append(changed, "sessions")
		attrs = append(attrs,
			logx.Strings("sessions.changed", sessions),
			logx.Int("sessions.active", len(newCfg.ActiveSessions())),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Prayer, newCfg.Prayer) {
		changed = append(changed, "prayer")
		names := make([]string, 0, 5)
		for _, p := range newCfg.EnabledPrayers() {
			names = append(names, string(p))
		}
		attrs = append(attrs,
			logx.String("prayer.data_dir", strings.TrimSpace(newCfg.Prayer.DataDir)),
			logx.Strings("prayer.enabled", names),
			logx.Bool("prayer.reminder_template_set", strings.TrimSpace(newCfg.Prayer.ReminderTemplate) != ""),
			logx.Bool("prayer.followup_template_set", strings.TrimSpace(newCfg.Prayer.FollowUpTemplate) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Reminder, newCfg.Reminder) {
		changed = append(changed, "reminder")
		lo, hi := newCfg.PollDelays()
		attrs = append(attrs,
			logx.Bool("reminder.enabled", newCfg.Reminder.Enabled),
			logx.String("reminder.tick_spec", newCfg.TickSpec()),
			logx.Duration("reminder.poll_delay_min", lo),
			logx.Duration("reminder.poll_delay_max", hi),
		)
	}

	if !reflect.DeepEqual(oldCfg.Monitor, newCfg.Monitor) {
		changed = append(changed, "monitor")
		attrs = append(attrs,
			logx.Bool("monitor.enabled", newCfg.Monitor.Enabled),
			logx.Int("monitor.exempt_count", len(newCfg.Monitor.Exempt)),
			logx.Duration("monitor.warn_grace", newCfg.WarnGrace()),
		)
	}

	if !reflect.DeepEqual(oldCfg.Destinations, newCfg.Destinations) {
		changed = append(changed, "destinations")
		attrs = append(attrs, logx.Int("destinations.count", len(newCfg.Destinations)))
	}

	oTE := derefTaskEngine(oldCfg.TaskEngine)
	nTE := derefTaskEngine(newCfg.TaskEngine)
	if (oldCfg.TaskEngine != nil) != (newCfg.TaskEngine != nil) || oTE != nTE {
		changed = append(changed, "task_engine")
		attrs = append(attrs,
			logx.Bool("task_engine.present", newCfg.TaskEngine != nil),
			logx.Int("task_engine.workers", nTE.Workers),
			logx.Int("task_engine.queue_size", nTE.QueueSize),
			logx.String("task_engine.default_timeout", strings.TrimSpace(nTE.DefaultTimeout)),
			logx.Int("task_engine.retry_max", nTE.RetryMax),
		)
	}

	// Storage and day_state are only read at startup; the summary still
	// flags them so operators know a restart is needed.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(nS.DSN) != ""),
			logx.Bool("restart_required", true),
		)
	}

	var oD, nD DayStateConfig
	if oldCfg.DayState != nil {
		oD = *oldCfg.DayState
	}
	if newCfg.DayState != nil {
		nD = *newCfg.DayState
	}
	if oD != nD {
		changed = append(changed, "day_state")
		attrs = append(attrs,
			logx.String("day_state.driver", strings.TrimSpace(nD.Driver)),
			logx.String("day_state.addr", strings.TrimSpace(nD.Addr)),
			logx.Bool("restart_required", true),
		)
	}

	if !reflect.DeepEqual(oldCfg.Stats, newCfg.Stats) {
		changed = append(changed, "stats")
		attrs = append(attrs,
			logx.Bool("stats.enabled", newCfg.StatsEnabled()),
			logx.String("stats.at", newCfg.StatsAt()),
		)
	}

	sort.Strings(changed)
	return changed, attrs, sessions
}

func derefTaskEngine(te *TaskEngineConfig) TaskEngineConfig {
	if te == nil {
		return TaskEngineConfig{}
	}
	return *te
}

func diffSessions(oldS, newS []SessionConfig) []string {
	index := func(in []SessionConfig) map[string]SessionConfig {
		m := make(map[string]SessionConfig, len(in))
		for _, s := range in {
			m[strings.TrimSpace(s.ID)] = s
		}
		return m
	}
	om, nm := index(oldS), index(newS)

	set := map[string]struct{}{}
	for k := range om {
		set[k] = struct{}{}
	}
	for k := range nm {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		o, okO := om[id]
		n, okN := nm[id]
		if okO != okN || o != n {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
