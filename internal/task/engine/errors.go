package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDisabled    = errors.New("task engine disabled")
	ErrStopped     = errors.New("task engine stopped")
	ErrStopping    = errors.New("task engine stopping")
	ErrQueueFull   = errors.New("task engine queue full")
	ErrOverlapSkip = errors.New("task skipped due to overlap policy")
)

// directive wraps a task error with an instruction for the retry loop.
type directive struct {
	err   error
	stop  bool
	after time.Duration
}

func (d *directive) Error() string {
	if d.stop {
		return "no-retry: " + d.err.Error()
	}
	return fmt.Sprintf("retry-after(%s): %v", d.after, d.err)
}

func (d *directive) Unwrap() error { return d.err }

// NoRetry ends the task after the current attempt, e.g. a member who
// blocked the bot.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return &directive{err: err, stop: true}
}

// RetryAfter asks for the next attempt no sooner than after. The wait is
// capped by RetryMaxDelay.
func RetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return &directive{err: err, after: max(after, 0)}
}

func IsNoRetry(err error) bool {
	var d *directive
	return errors.As(err, &d) && d.stop
}

// RetryHint returns the delay set by RetryAfter.
func RetryHint(err error) (time.Duration, bool) {
	var d *directive
	if errors.As(err, &d) && !d.stop {
		return d.after, true
	}
	return 0, false
}

// noRetryCause returns the error wrapped by NoRetry, or nil.
func noRetryCause(err error) error {
	var d *directive
	if errors.As(err, &d) && d.stop {
		return d.err
	}
	return nil
}
