package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// DefaultSessionID names the session created from AZAN_BOT_TOKEN when the
// file declares none.
const DefaultSessionID = "default"

// EnvOverrides are deployment settings that win over the config file.
type EnvOverrides struct {
	BotToken       string   `env:"AZAN_BOT_TOKEN"`
	EnabledPrayers []string `env:"ENABLED_PRAYERS"         envSeparator:","`
	Exempt         []string `env:"AZAN_EXEMPT_SUBSCRIBERS" envSeparator:","`
	DBDriver       string   `env:"AZAN_DATABASE_DRIVER"`
	DBDSN          string   `env:"AZAN_DATABASE_DSN"`
	RedisAddr      string   `env:"AZAN_REDIS_ADDR"`
	DataDir        string   `env:"AZAN_DATA_DIR"`
	LogLevel       string   `env:"AZAN_LOG_LEVEL"`
}

// ParseEnv reads overrides from environ, or from the process environment
// when environ is nil.
func ParseEnv(environ map[string]string) (EnvOverrides, error) {
	var o EnvOverrides
	var err error
	if environ != nil {
		err = env.ParseWithOptions(&o, env.Options{Environment: environ})
	} else {
		err = env.Parse(&o)
	}
	if err != nil {
		return EnvOverrides{}, fmt.Errorf("parse env: %w", err)
	}
	return o, nil
}

// Apply writes every non-empty override into cfg.
func (o EnvOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if tok := strings.TrimSpace(o.BotToken); tok != "" {
		if len(cfg.Sessions) == 0 {
			cfg.Sessions = append(cfg.Sessions, SessionConfig{ID: DefaultSessionID})
		}
		cfg.Sessions[0].Token = tok
	}
	if ps := cleanList(o.EnabledPrayers, true); len(ps) > 0 {
		cfg.Prayer.EnabledPrayers = ps
	}
	if ex := cleanList(o.Exempt, false); len(ex) > 0 {
		cfg.Monitor.Exempt = ex
	}
	if d := strings.TrimSpace(o.DBDriver); d != "" {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{}
		}
		cfg.Storage.Driver = d
	}
	if dsn := strings.TrimSpace(o.DBDSN); dsn != "" {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{}
		}
		cfg.Storage.DSN = dsn
	}
	if addr := strings.TrimSpace(o.RedisAddr); addr != "" {
		if cfg.DayState == nil {
			cfg.DayState = &DayStateConfig{}
		}
		cfg.DayState.Driver = "redis"
		cfg.DayState.Addr = addr
	}
	if dir := strings.TrimSpace(o.DataDir); dir != "" {
		cfg.Prayer.DataDir = dir
	}
	if lvl := strings.TrimSpace(o.LogLevel); lvl != "" {
		cfg.Logging.Level = lvl
	}
}

func cleanList(in []string, lower bool) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if lower {
			s = strings.ToLower(s)
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
