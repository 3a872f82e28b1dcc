// Package dispatch defines the outbound messaging port and the decorators
// every transport is wrapped in (message tracking, rate limiting).
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Gateway is the outbound side of a messaging transport. Every method
// addresses one destination of one session.
type Gateway interface {
	SendText(ctx context.Context, sessionID, destinationID, text string) error
	SendPoll(ctx context.Context, sessionID, destinationID, question string, options []string) error
	ListMembers(ctx context.Context, sessionID, destinationID string) ([]string, error)
	RemoveMembers(ctx context.Context, sessionID, destinationID string, memberIDs []string) error
}

// Operation names carried by Failure.
const (
	OpSendText      = "send_text"
	OpSendPoll      = "send_poll"
	OpListMembers   = "list_members"
	OpRemoveMembers = "remove_members"
)

// ErrUnknownSession is returned for a session the transport does not run.
var ErrUnknownSession = errors.New("dispatch: unknown session")

// Failure wraps any transport error.
type Failure struct {
	Op            string
	SessionID     string
	DestinationID string
	// RetryAfter is set when the platform asked us to back off.
	RetryAfter time.Duration
	Err        error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("dispatch %s %s/%s: %v", f.Op, f.SessionID, f.DestinationID, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Fail wraps err as a *Failure unless it already is one. Nil stays nil.
func Fail(op, sessionID, destinationID string, err error) error {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	return &Failure{Op: op, SessionID: sessionID, DestinationID: destinationID, Err: err}
}

// RetryAfterOf reports the back-off requested by the platform, if any.
func RetryAfterOf(err error) (time.Duration, bool) {
	var f *Failure
	if errors.As(err, &f) && f.RetryAfter > 0 {
		return f.RetryAfter, true
	}
	return 0, false
}
