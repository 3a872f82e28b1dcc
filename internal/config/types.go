package config

// Config is the on-disk configuration (YAML or JSON). Unknown keys are rejected.
//
// Durations are Go duration strings ("30m", "2h").
type Config struct {
	Sessions     []SessionConfig   `json:"sessions"`
	Logging      LoggingConfig     `json:"logging"`
	Prayer       PrayerConfig      `json:"prayer"`
	Reminder     ReminderConfig    `json:"reminder"`
	Monitor      MonitorConfig     `json:"monitor"`
	Destinations []DestinationSeed `json:"destinations,omitempty"`
	TaskEngine   *TaskEngineConfig `json:"task_engine,omitempty"`
	Storage      *StorageConfig    `json:"storage,omitempty"`
	DayState     *DayStateConfig   `json:"day_state,omitempty"`
	Stats        *StatsConfig      `json:"stats,omitempty"`
}

// SessionConfig is one bot identity. The token is never logged.
type SessionConfig struct {
	ID    string `json:"id"`
	Token string `json:"token"`
	// PollTimeout is the long-poll timeout (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// Outbound throttle per session. 0 means default (20/s, burst 5).
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
	Disabled   bool    `json:"disabled,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat mirrors warnings into an operator group through a session.
type LoggingChat struct {
	Enabled       bool   `json:"enabled"`
	Session       string `json:"session,omitempty"`
	DestinationID string `json:"destination_id,omitempty"`
	MinLevel      string `json:"min_level,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
}

// PrayerConfig controls the data source and message content.
//
// Templates support {{location}}, {{district}}, {{prayer}} and {{time}}.
type PrayerConfig struct {
	DataDir          string   `json:"data_dir"`
	EnabledPrayers   []string `json:"enabled_prayers,omitempty"`
	ReminderTemplate string   `json:"reminder_template,omitempty"`
	FollowUpTemplate string   `json:"followup_template,omitempty"`
}

// ReminderConfig controls the minute tick.
//
// Defaults:
//   - tick_spec: "0 * * * * *" (second 0 of every minute)
//   - poll_delay_min/max: "5s" / "30s"
//   - digest_window: "04:00" (first minute of the 31 minute digest window)
type ReminderConfig struct {
	Enabled      bool   `json:"enabled"`
	TickSpec     string `json:"tick_spec,omitempty"`
	FollowUps    *bool  `json:"followups,omitempty"`
	Digest       *bool  `json:"digest,omitempty"`
	IshaPoll     *bool  `json:"isha_poll,omitempty"`
	PollDelayMin string `json:"poll_delay_min,omitempty"`
	PollDelayMax string `json:"poll_delay_max,omitempty"`
	DigestWindow string `json:"digest_window,omitempty"`
}

// MonitorConfig controls duplicate-membership enforcement.
//
// Defaults:
//   - warn_grace: "30m"
//   - scan_min/scan_max: "1h" / "3h"
type MonitorConfig struct {
	Enabled   bool     `json:"enabled"`
	Exempt    []string `json:"exempt,omitempty"`
	WarnGrace string   `json:"warn_grace,omitempty"`
	ScanMin   string   `json:"scan_min,omitempty"`
	ScanMax   string   `json:"scan_max,omitempty"`
}

// DestinationSeed is an admin-declared mapping, applied at startup and on reload.
type DestinationSeed struct {
	Session       string `json:"session"`
	LocationID    int    `json:"location_id"`
	DestinationID string `json:"destination_id"`
	Label         string `json:"label,omitempty"`
	Enabled       *bool  `json:"enabled,omitempty"`
}

// TaskEngineConfig controls the send/tick executor.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - queue_size: 1024
//   - default_timeout: "30s"
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 200
//   - retry_max: 2
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
}

// StorageConfig controls persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/azanbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// DayStateConfig selects where "already sent today" markers live.
// "memory" (default) forgets them on restart; "redis" shares them across
// restarts and replicas.
type DayStateConfig struct {
	Driver   string `json:"driver"`
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// StatsConfig controls the daily delivery summary log line.
type StatsConfig struct {
	Enabled bool   `json:"enabled"`
	At      string `json:"at,omitempty"` // HH:MM IST, default "23:59"
}
