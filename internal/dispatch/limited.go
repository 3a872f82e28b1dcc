package dispatch

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

const (
	defaultRatePerSec = 20
	defaultBurst      = 5
)

// Limited throttles outbound calls per session with a token bucket.
type Limited struct {
	next Gateway

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewLimited(next Gateway) *Limited {
	return &Limited{next: next, limiters: map[string]*rate.Limiter{}}
}

// Configure sets the session's rate. Zero values use the defaults.
func (l *Limited) Configure(sessionID string, perSec float64, burst int) {
	if perSec <= 0 {
		perSec = defaultRatePerSec
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim := l.limiters[sessionID]; lim != nil {
		lim.SetLimit(rate.Limit(perSec))
		lim.SetBurst(burst)
		return
	}
	l.limiters[sessionID] = rate.NewLimiter(rate.Limit(perSec), burst)
}

func (l *Limited) limiter(sessionID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim := l.limiters[sessionID]
	if lim == nil {
		lim = rate.NewLimiter(defaultRatePerSec, defaultBurst)
		l.limiters[sessionID] = lim
	}
	return lim
}

func (l *Limited) wait(ctx context.Context, op, sessionID, destinationID string) error {
	if err := l.limiter(sessionID).Wait(ctx); err != nil {
		return Fail(op, sessionID, destinationID, err)
	}
	return nil
}

func (l *Limited) SendText(ctx context.Context, sessionID, destinationID, text string) error {
	if err := l.wait(ctx, OpSendText, sessionID, destinationID); err != nil {
		return err
	}
	return l.next.SendText(ctx, sessionID, destinationID, text)
}

func (l *Limited) SendPoll(ctx context.Context, sessionID, destinationID, question string, options []string) error {
	if err := l.wait(ctx, OpSendPoll, sessionID, destinationID); err != nil {
		return err
	}
	return l.next.SendPoll(ctx, sessionID, destinationID, question, options)
}

// ListMembers reads local state and is not throttled.
func (l *Limited) ListMembers(ctx context.Context, sessionID, destinationID string) ([]string, error) {
	return l.next.ListMembers(ctx, sessionID, destinationID)
}

func (l *Limited) RemoveMembers(ctx context.Context, sessionID, destinationID string, memberIDs []string) error {
	if err := l.wait(ctx, OpRemoveMembers, sessionID, destinationID); err != nil {
		return err
	}
	return l.next.RemoveMembers(ctx, sessionID, destinationID, memberIDs)
}
