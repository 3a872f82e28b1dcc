package config

import (
	"errors"
	"fmt"
	"strings"

	"azanbot/internal/clock"
	"azanbot/internal/prayer"
)

// Validate rejects configs the app cannot run with. It is used both at
// startup and as the hot-reload gate.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	seen := map[string]bool{}
	active := 0
	for i, s := range cfg.Sessions {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return fmt.Errorf("sessions[%d].id is required", i)
		}
		if seen[id] {
			return fmt.Errorf("sessions[%d]: duplicate id %q", i, id)
		}
		seen[id] = true
		if s.Disabled {
			continue
		}
		if strings.TrimSpace(s.Token) == "" {
			return fmt.Errorf("sessions[%d] (%s): token is required", i, id)
		}
		if s.RatePerSec < 0 || s.Burst < 0 {
			return fmt.Errorf("sessions[%d] (%s): rate_per_sec and burst must be >= 0", i, id)
		}
		if _, err := ParseDurationField(fmt.Sprintf("sessions[%d].poll_timeout", i), s.PollTimeout); err != nil {
			return err
		}
		active++
	}
	if active == 0 {
		return errors.New("at least one enabled session is required (set sessions or AZAN_BOT_TOKEN)")
	}

	if strings.TrimSpace(cfg.Prayer.DataDir) == "" {
		return errors.New("prayer.data_dir is required")
	}
	for _, p := range cfg.Prayer.EnabledPrayers {
		if _, ok := prayer.ParsePrayer(p); !ok {
			return fmt.Errorf("prayer.enabled_prayers: unknown prayer %q", p)
		}
	}

	if _, err := ParseDurationField("reminder.poll_delay_min", cfg.Reminder.PollDelayMin); err != nil {
		return err
	}
	if _, err := ParseDurationField("reminder.poll_delay_max", cfg.Reminder.PollDelayMax); err != nil {
		return err
	}
	if lo, hi := cfg.PollDelays(); hi < lo {
		return fmt.Errorf("reminder.poll_delay_max (%s) must be >= poll_delay_min (%s)", hi, lo)
	}
	if w := strings.TrimSpace(cfg.Reminder.DigestWindow); w != "" {
		if _, _, err := clock.ParseHHMM(w); err != nil {
			return fmt.Errorf("reminder.digest_window: %w", err)
		}
	}

	if _, err := ParseDurationField("monitor.warn_grace", cfg.Monitor.WarnGrace); err != nil {
		return err
	}
	if _, err := ParseDurationField("monitor.scan_min", cfg.Monitor.ScanMin); err != nil {
		return err
	}
	if _, err := ParseDurationField("monitor.scan_max", cfg.Monitor.ScanMax); err != nil {
		return err
	}
	if lo, hi := cfg.ScanInterval(); hi < lo {
		return fmt.Errorf("monitor.scan_max (%s) must be >= scan_min (%s)", hi, lo)
	}

	for i, d := range cfg.Destinations {
		if !seen[strings.TrimSpace(d.Session)] {
			return fmt.Errorf("destinations[%d]: unknown session %q", i, d.Session)
		}
		if d.LocationID <= 0 {
			return fmt.Errorf("destinations[%d]: location_id must be > 0", i)
		}
		if strings.TrimSpace(d.DestinationID) == "" {
			return fmt.Errorf("destinations[%d]: destination_id is required", i)
		}
	}

	if te := cfg.TaskEngine; te != nil {
		if te.Workers < 0 {
			return fmt.Errorf("task_engine.workers must be >= 0")
		}
		if te.QueueSize < 0 {
			return fmt.Errorf("task_engine.queue_size must be >= 0")
		}
		if te.HistorySize < 0 {
			return fmt.Errorf("task_engine.history_size must be >= 0")
		}
		if te.RetryMax < 0 {
			return fmt.Errorf("task_engine.retry_max must be >= 0")
		}
		if _, err := ParseDurationField("task_engine.default_timeout", te.DefaultTimeout); err != nil {
			return err
		}
		if _, err := ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay); err != nil {
			return err
		}
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "postgres", "postgresql", "pgx":
			if strings.TrimSpace(st.DSN) == "" {
				return fmt.Errorf("storage.dsn is required for driver %q", st.Driver)
			}
		}
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			return err
		}
	}

	if ds := cfg.DayState; ds != nil {
		switch strings.ToLower(strings.TrimSpace(ds.Driver)) {
		case "", "memory":
		case "redis":
			if strings.TrimSpace(ds.Addr) == "" {
				return errors.New("day_state.addr is required for driver redis")
			}
		default:
			return fmt.Errorf("day_state.driver: unknown driver %q", ds.Driver)
		}
	}

	if cfg.Logging.Chat.Enabled {
		if !seen[strings.TrimSpace(cfg.Logging.Chat.Session)] {
			return fmt.Errorf("logging.chat.session: unknown session %q", cfg.Logging.Chat.Session)
		}
		if strings.TrimSpace(cfg.Logging.Chat.DestinationID) == "" {
			return errors.New("logging.chat.destination_id is required when chat logging is enabled")
		}
	}

	if st := cfg.Stats; st != nil && strings.TrimSpace(st.At) != "" {
		if _, _, err := clock.ParseHHMM(st.At); err != nil {
			return fmt.Errorf("stats.at: %w", err)
		}
	}
	return nil
}
