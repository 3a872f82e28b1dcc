package config

import (
	"strings"
	"time"

	"azanbot/internal/prayer"
)

// Effective values. Invalid durations fall back to the default; Validate
// reports them before a config is committed.

const (
	DefaultTickSpec     = "0 * * * * *"
	DefaultDigestWindow = "04:00"
	DefaultStatsAt      = "23:59"
)

// EnabledPrayers returns the configured prayers in daily order, or all five.
func (c *Config) EnabledPrayers() []prayer.Prayer {
	if c == nil || len(c.Prayer.EnabledPrayers) == 0 {
		return append([]prayer.Prayer(nil), prayer.All...)
	}
	want := map[prayer.Prayer]bool{}
	for _, s := range c.Prayer.EnabledPrayers {
		if p, ok := prayer.ParsePrayer(s); ok {
			want[p] = true
		}
	}
	out := make([]prayer.Prayer, 0, len(want))
	for _, p := range prayer.All {
		if want[p] {
			out = append(out, p)
		}
	}
	return out
}

// ActiveSessions returns sessions that are not disabled.
func (c *Config) ActiveSessions() []SessionConfig {
	if c == nil {
		return nil
	}
	out := make([]SessionConfig, 0, len(c.Sessions))
	for _, s := range c.Sessions {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) TickSpec() string {
	if c == nil || strings.TrimSpace(c.Reminder.TickSpec) == "" {
		return DefaultTickSpec
	}
	return strings.TrimSpace(c.Reminder.TickSpec)
}

func (c *Config) DigestWindow() string {
	if c == nil || strings.TrimSpace(c.Reminder.DigestWindow) == "" {
		return DefaultDigestWindow
	}
	return strings.TrimSpace(c.Reminder.DigestWindow)
}

// PollDelays returns the per-member poll delay range.
func (c *Config) PollDelays() (time.Duration, time.Duration) {
	if c == nil {
		return 5 * time.Second, 30 * time.Second
	}
	lo, _ := ParseDurationOrDefault("reminder.poll_delay_min", c.Reminder.PollDelayMin, 5*time.Second)
	hi, _ := ParseDurationOrDefault("reminder.poll_delay_max", c.Reminder.PollDelayMax, 30*time.Second)
	return lo, hi
}

func (c *Config) WarnGrace() time.Duration {
	if c == nil {
		return 30 * time.Minute
	}
	d, _ := ParseDurationOrDefault("monitor.warn_grace", c.Monitor.WarnGrace, 30*time.Minute)
	return d
}

// ScanInterval returns the bounds the full membership scan is re-rolled in.
func (c *Config) ScanInterval() (time.Duration, time.Duration) {
	if c == nil {
		return time.Hour, 3 * time.Hour
	}
	lo, _ := ParseDurationOrDefault("monitor.scan_min", c.Monitor.ScanMin, time.Hour)
	hi, _ := ParseDurationOrDefault("monitor.scan_max", c.Monitor.ScanMax, 3*time.Hour)
	return lo, hi
}

func (c *Config) StatsAt() string {
	if c == nil || c.Stats == nil || strings.TrimSpace(c.Stats.At) == "" {
		return DefaultStatsAt
	}
	return strings.TrimSpace(c.Stats.At)
}

// Enabled reports whether an optional reminder pass is on. Nil means on.
func Enabled(b *bool) bool { return b == nil || *b }

// StatsEnabled reports whether the daily delivery summary runs. It defaults to on.
func (c *Config) StatsEnabled() bool {
	return c != nil && (c.Stats == nil || c.Stats.Enabled)
}
