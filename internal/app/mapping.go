package app

import (
	"fmt"
	"strings"
	"time"

	"azanbot/internal/clock"
	"azanbot/internal/config"
	"azanbot/internal/membership"
	"azanbot/internal/reminder"
	"azanbot/internal/storage"
	"azanbot/internal/task/engine"
	"azanbot/internal/transport/telegram"
	"azanbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:       cfg.Logging.Chat.Enabled,
			SessionID:     cfg.Logging.Chat.Session,
			DestinationID: cfg.Logging.Chat.DestinationID,
			MinLevel:      cfg.Logging.Chat.MinLevel,
			RatePerSec:    cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{Driver: "memory"}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "memory", "none":
		return storage.Config{Driver: "memory"}, nil
	case "file":
		return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path)}, nil
	case "sqlite", "sqlite3":
		if strings.TrimSpace(sc.Path) == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, nil
	case "postgres", "postgresql", "pgx":
		return storage.Config{Driver: "postgres", DSN: strings.TrimSpace(sc.DSN)}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	out := engine.Config{Enabled: true}
	te := cfg.TaskEngine
	if te == nil {
		return out, nil
	}
	var err error
	out.Workers = te.Workers
	out.QueueSize = te.QueueSize
	out.HistorySize = te.HistorySize
	out.RetryMax = te.RetryMax
	if out.DefaultTimeout, err = config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout); err != nil {
		return engine.Config{}, err
	}
	if out.MaxQueueDelay, err = config.ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay); err != nil {
		return engine.Config{}, err
	}
	return out, nil
}

func mapSessionConfig(sc config.SessionConfig) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("sessions["+sc.ID+"].poll_timeout", sc.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{SessionID: sc.ID, Token: sc.Token, PollTimeout: poll}, nil
}

func reminderSettings(cfg *config.Config) reminder.Settings {
	lo, hi := cfg.PollDelays()
	return reminder.Settings{
		Prayers:          cfg.EnabledPrayers(),
		ReminderTemplate: cfg.Prayer.ReminderTemplate,
		FollowUpTemplate: cfg.Prayer.FollowUpTemplate,
		FollowUps:        config.Enabled(cfg.Reminder.FollowUps),
		Digest:           config.Enabled(cfg.Reminder.Digest),
		IshaPoll:         config.Enabled(cfg.Reminder.IshaPoll),
		PollDelayMin:     lo,
		PollDelayMax:     hi,
		DigestStart:      cfg.DigestWindow(),
	}
}

func monitorSettings(cfg *config.Config) membership.Settings {
	lo, hi := cfg.ScanInterval()
	return membership.Settings{
		Enabled:   cfg.Monitor.Enabled,
		Exempt:    append([]string(nil), cfg.Monitor.Exempt...),
		WarnGrace: cfg.WarnGrace(),
		ScanMin:   lo,
		ScanMax:   hi,
	}
}

func ledgerOptions(cfg *config.Config) (reminder.RedisOptions, bool) {
	ds := cfg.DayState
	if ds == nil || !strings.EqualFold(strings.TrimSpace(ds.Driver), "redis") {
		return reminder.RedisOptions{}, false
	}
	return reminder.RedisOptions{Addr: ds.Addr, Password: ds.Password, DB: ds.DB, Prefix: ds.Prefix}, true
}

func statsAt(cfg *config.Config) (string, bool) {
	at := cfg.StatsAt()
	if _, _, err := clock.ParseHHMM(at); err != nil {
		return "", false
	}
	return at, cfg.StatsEnabled()
}
