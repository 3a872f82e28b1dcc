package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type mappingKey struct {
	session  string
	location int
}

type subscriberKey struct {
	subscriber string
	session    string
}

type voteKey struct {
	subscriber string
	session    string
	date       string
}

type rosterKey struct {
	session string
	dest    string
}

// memStore keeps everything in maps under one mutex.
type memStore struct {
	mu          sync.Mutex
	mappings    map[mappingKey]Mapping
	subscribers map[subscriberKey]MonitoredSubscriber
	messages    []MessageLog
	votes       map[voteKey]PrayerVote
	roster      map[rosterKey]map[string]struct{}

	// onChange runs after each mutation with mu held (file driver persistence).
	onChange func() error
}

// NewMemory returns a process-local Store.
func NewMemory() Store { return newMemStore() }

func newMemStore() *memStore {
	return &memStore{
		mappings:    map[mappingKey]Mapping{},
		subscribers: map[subscriberKey]MonitoredSubscriber{},
		votes:       map[voteKey]PrayerVote{},
		roster:      map[rosterKey]map[string]struct{}{},
	}
}

func (s *memStore) changedLocked() error {
	if s.onChange == nil {
		return nil
	}
	return s.onChange()
}

func (s *memStore) Close() error { return nil }

func (s *memStore) UpsertMapping(_ context.Context, m Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[mappingKey{m.SessionID, m.LocationID}] = m
	return s.changedLocked()
}

func (s *memStore) SetMappingEnabled(_ context.Context, sessionID string, locationID int, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := mappingKey{sessionID, locationID}
	m, ok := s.mappings[k]
	if !ok {
		return ErrNotFound
	}
	m.Enabled = enabled
	s.mappings[k] = m
	return s.changedLocked()
}

func (s *memStore) ListMappings(_ context.Context, sessionID string, enabledOnly bool) ([]Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Mapping, 0)
	for _, m := range s.mappings {
		if m.SessionID != sessionID || (enabledOnly && !m.Enabled) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocationID < out[j].LocationID })
	return out, nil
}

func (s *memStore) UpsertOrGetSubscriber(_ context.Context, rec MonitoredSubscriber) (MonitoredSubscriber, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := subscriberKey{rec.SubscriberID, rec.SessionID}
	if cur, ok := s.subscribers[k]; ok {
		return cloneSubscriber(cur), false, nil
	}
	s.subscribers[k] = cloneSubscriber(rec)
	return cloneSubscriber(rec), true, s.changedLocked()
}

func (s *memStore) UpdateSubscriber(_ context.Context, rec MonitoredSubscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := subscriberKey{rec.SubscriberID, rec.SessionID}
	if _, ok := s.subscribers[k]; !ok {
		return ErrNotFound
	}
	s.subscribers[k] = cloneSubscriber(rec)
	return s.changedLocked()
}

func (s *memStore) DeleteSubscriber(_ context.Context, subscriberID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := subscriberKey{subscriberID, sessionID}
	if _, ok := s.subscribers[k]; !ok {
		return nil
	}
	delete(s.subscribers, k)
	return s.changedLocked()
}

func (s *memStore) ListSubscribers(_ context.Context, sessionID string, status SubscriberStatus) ([]MonitoredSubscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MonitoredSubscriber, 0)
	for _, r := range s.subscribers {
		if r.SessionID != sessionID || (status != "" && r.Status != status) {
			continue
		}
		out = append(out, cloneSubscriber(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubscriberID < out[j].SubscriberID })
	return out, nil
}

func (s *memStore) AppendMessage(_ context.Context, m MessageLog) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.mu.Unlock()
	return nil
}

func (s *memStore) MessageStats(_ context.Context, since time.Time) (MessageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st MessageStats
	for _, m := range s.messages {
		if m.CreatedAt.Before(since) {
			continue
		}
		st.Total++
		switch m.Status {
		case MessageSent:
			st.Sent++
		case MessageFailed:
			st.Failed++
		}
	}
	st.finish()
	return st, nil
}

func (s *memStore) PutVote(_ context.Context, v PrayerVote) error {
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = time.Now()
	}
	v.Prayers = append([]string(nil), v.Prayers...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[voteKey{v.SubscriberID, v.SessionID, v.Date}] = v
	return s.changedLocked()
}

func (s *memStore) ListVotes(_ context.Context, sessionID, date string) ([]PrayerVote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PrayerVote, 0)
	for _, v := range s.votes {
		if v.SessionID == sessionID && v.Date == date {
			v.Prayers = append([]string(nil), v.Prayers...)
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubscriberID < out[j].SubscriberID })
	return out, nil
}

func (s *memStore) AddRosterMembers(_ context.Context, sessionID, destinationID string, memberIDs []string) error {
	if len(memberIDs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := rosterKey{sessionID, destinationID}
	set := s.roster[k]
	if set == nil {
		set = map[string]struct{}{}
		s.roster[k] = set
	}
	added := false
	for _, id := range memberIDs {
		if _, ok := set[id]; !ok {
			set[id] = struct{}{}
			added = true
		}
	}
	if !added {
		return nil
	}
	return s.changedLocked()
}

func (s *memStore) RemoveRosterMembers(_ context.Context, sessionID, destinationID string, memberIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.roster[rosterKey{sessionID, destinationID}]
	if set == nil {
		return nil
	}
	for _, id := range memberIDs {
		delete(set, id)
	}
	return s.changedLocked()
}

func (s *memStore) ListRoster(_ context.Context, sessionID, destinationID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.roster[rosterKey{sessionID, destinationID}]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func cloneSubscriber(r MonitoredSubscriber) MonitoredSubscriber {
	r.DestinationIDs = append([]string(nil), r.DestinationIDs...)
	r.DestinationNames = append([]string(nil), r.DestinationNames...)
	return r
}
