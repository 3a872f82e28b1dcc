package reminder

import (
	"context"
	"strings"
	"sync"
)

// Ledger namespaces.
const (
	NSDigest   = "digest"
	NSFollowUp = "followup"
	NSPoll     = "poll"
)

// Ledger remembers what has already been sent today.
type Ledger interface {
	// Rollover starts a new day when date differs from the last one seen.
	Rollover(ctx context.Context, date string) error
	// Mark inserts key into ns and reports whether it was absent.
	Mark(ctx context.Context, ns, key string) (bool, error)
}

// Key joins the parts of a ledger key.
func Key(parts ...string) string { return strings.Join(parts, "|") }

// MemoryLedger is the default Ledger. It forgets everything on restart.
type MemoryLedger struct {
	mu   sync.Mutex
	date string
	sets map[string]map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{sets: map[string]map[string]struct{}{}}
}

func (l *MemoryLedger) Rollover(_ context.Context, date string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.date != date {
		l.date = date
		l.sets = map[string]map[string]struct{}{}
	}
	return nil
}

func (l *MemoryLedger) Mark(_ context.Context, ns, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	set := l.sets[ns]
	if set == nil {
		set = map[string]struct{}{}
		l.sets[ns] = set
	}
	if _, ok := set[key]; ok {
		return false, nil
	}
	set[key] = struct{}{}
	return true, nil
}

// Len reports the size of ns.
func (l *MemoryLedger) Len(ns string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sets[ns])
}
