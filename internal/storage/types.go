package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("storage: not found")
)

// Config configures storage.
//
// Path is used by file and sqlite; DSN by postgres.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Mapping binds a destination to a location for one session.
// Unique per (SessionID, LocationID).
type Mapping struct {
	SessionID     string
	LocationID    int
	DestinationID string
	Label         string
	Enabled       bool
}

type SubscriberStatus string

const (
	// StatusPending holds the slot while the warning is being delivered.
	StatusPending SubscriberStatus = "pending"
	StatusWarned  SubscriberStatus = "warned"
	StatusRemoved SubscriberStatus = "removed"
)

// MonitoredSubscriber is the escalation record of a subscriber found in more
// than one destination. Unique per (SubscriberID, SessionID).
type MonitoredSubscriber struct {
	SubscriberID     string
	SessionID        string
	DestinationIDs   []string
	DestinationNames []string
	WarnedAt         time.Time
	Status           SubscriberStatus
}

type MessageKind string

const (
	KindReminder MessageKind = "reminder"
	KindFollowUp MessageKind = "followup"
	KindDigest   MessageKind = "digest"
	KindPoll     MessageKind = "poll"
	KindWarning  MessageKind = "warning"
	KindRemoval  MessageKind = "removal"
	KindReply    MessageKind = "reply"
)

type MessageStatus string

const (
	MessageSent   MessageStatus = "sent"
	MessageFailed MessageStatus = "failed"
)

// MessageLog is one outbound message attempt.
type MessageLog struct {
	ID            string
	SessionID     string
	DestinationID string
	Kind          MessageKind
	Location      string
	Prayer        string
	Text          string
	Status        MessageStatus
	Error         string
	CreatedAt     time.Time
}

// MessageStats summarizes the message log since a point in time.
type MessageStats struct {
	Total        int64
	Sent         int64
	Failed       int64
	DeliveryRate float64 // percent, 0 when Total is 0
}

func (s *MessageStats) finish() {
	if s.Total > 0 {
		s.DeliveryRate = float64(s.Sent) * 100 / float64(s.Total)
	}
}

// PrayerVote is a subscriber's answer to the daily summary poll.
type PrayerVote struct {
	SubscriberID string
	SessionID    string
	Date         string // YYYY-MM-DD, IST
	Prayers      []string
	UpdatedAt    time.Time
}
