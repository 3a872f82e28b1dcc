package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "azanbot/pkg/logx"
)

// MappingStore holds destination mappings.
type MappingStore interface {
	UpsertMapping(ctx context.Context, m Mapping) error
	SetMappingEnabled(ctx context.Context, sessionID string, locationID int, enabled bool) error
	ListMappings(ctx context.Context, sessionID string, enabledOnly bool) ([]Mapping, error)
}

// SubscriberStore holds monitored-subscriber records.
//
// UpsertOrGetSubscriber must be atomic per (SubscriberID, SessionID): it
// inserts rec when absent and returns created=true, or returns the stored
// record untouched.
type SubscriberStore interface {
	UpsertOrGetSubscriber(ctx context.Context, rec MonitoredSubscriber) (MonitoredSubscriber, bool, error)
	UpdateSubscriber(ctx context.Context, rec MonitoredSubscriber) error
	DeleteSubscriber(ctx context.Context, subscriberID, sessionID string) error
	ListSubscribers(ctx context.Context, sessionID string, status SubscriberStatus) ([]MonitoredSubscriber, error)
}

// MessageLogStore records outbound messages.
type MessageLogStore interface {
	AppendMessage(ctx context.Context, m MessageLog) error
	MessageStats(ctx context.Context, since time.Time) (MessageStats, error)
}

// VoteStore records poll answers.
type VoteStore interface {
	PutVote(ctx context.Context, v PrayerVote) error
	ListVotes(ctx context.Context, sessionID, date string) ([]PrayerVote, error)
}

// RosterStore tracks who the transport has seen in each destination.
type RosterStore interface {
	AddRosterMembers(ctx context.Context, sessionID, destinationID string, memberIDs []string) error
	RemoveRosterMembers(ctx context.Context, sessionID, destinationID string, memberIDs []string) error
	ListRoster(ctx context.Context, sessionID, destinationID string) ([]string, error)
}

// Store is the full persistence API.
type Store interface {
	MappingStore
	SubscriberStore
	MessageLogStore
	VoteStore
	RosterStore
	Close() error
}

// Open initializes the configured store. An empty driver means "memory".
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql", "pgx":
		return openPostgres(cfg, log)
	case "none":
		return nil, ErrDisabled
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
