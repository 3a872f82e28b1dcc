package telegram

import "time"

// Config is one bot token run as one session.
type Config struct {
	SessionID   string
	Token       string
	PollTimeout time.Duration
}

func (c Config) pollTimeout() time.Duration {
	if c.PollTimeout <= 0 {
		return 10 * time.Second
	}
	return c.PollTimeout
}
