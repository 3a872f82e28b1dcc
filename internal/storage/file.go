package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	logx "azanbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend on top of memStore.
//
// Files:
//   - <prefix>.state.json       (mappings, subscribers, votes, roster; rewritten via tmp+rename)
//   - <prefix>.messages.jsonl   (append-only message log, replayed on open)
type fileStore struct {
	*memStore
	log logx.Logger

	statePath   string
	messageFile *os.File
}

type fileState struct {
	Mappings    []Mapping             `json:"mappings"`
	Subscribers []MonitoredSubscriber `json:"subscribers"`
	Votes       []PrayerVote          `json:"votes"`
	Roster      []rosterRecord        `json:"roster"`
}

type rosterRecord struct {
	SessionID     string   `json:"session_id"`
	DestinationID string   `json:"destination_id"`
	Members       []string `json:"members"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	st := &fileStore{
		memStore:  newMemStore(),
		log:       log,
		statePath: prefix + ".state.json",
	}
	if err := st.loadState(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	msgPath := prefix + ".messages.jsonl"
	if err := st.replayMessages(msgPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("storage.replay_failed", logx.String("path", msgPath), logx.Err(err))
	}
	mf, err := os.OpenFile(msgPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	st.messageFile = mf
	st.memStore.onChange = st.saveStateLocked
	return st, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.messageFile == nil {
		return nil
	}
	err := s.messageFile.Close()
	s.messageFile = nil
	return err
}

func (s *fileStore) AppendMessage(ctx context.Context, m MessageLog) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if err := s.memStore.AppendMessage(ctx, m); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.messageFile == nil {
		return errors.New("message journal closed")
	}
	return json.NewEncoder(s.messageFile).Encode(m)
}

func (s *fileStore) loadState() error {
	f, err := os.Open(s.statePath)
	if err != nil {
		return err
	}
	defer f.Close()
	var st fileState
	if err := json.NewDecoder(f).Decode(&st); err != nil {
		return err
	}
	for _, m := range st.Mappings {
		s.mappings[mappingKey{m.SessionID, m.LocationID}] = m
	}
	for _, r := range st.Subscribers {
		s.subscribers[subscriberKey{r.SubscriberID, r.SessionID}] = r
	}
	for _, v := range st.Votes {
		s.votes[voteKey{v.SubscriberID, v.SessionID, v.Date}] = v
	}
	for _, r := range st.Roster {
		set := map[string]struct{}{}
		for _, id := range r.Members {
			set[id] = struct{}{}
		}
		s.roster[rosterKey{r.SessionID, r.DestinationID}] = set
	}
	return nil
}

// saveStateLocked runs with memStore.mu held.
func (s *fileStore) saveStateLocked() error {
	st := fileState{}
	for _, m := range s.mappings {
		st.Mappings = append(st.Mappings, m)
	}
	for _, r := range s.subscribers {
		st.Subscribers = append(st.Subscribers, r)
	}
	for _, v := range s.votes {
		st.Votes = append(st.Votes, v)
	}
	for k, set := range s.roster {
		rec := rosterRecord{SessionID: k.session, DestinationID: k.dest}
		for id := range set {
			rec.Members = append(rec.Members, id)
		}
		st.Roster = append(st.Roster, rec)
	}

	tmp := s.statePath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(st); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.statePath)
}

func (s *fileStore) replayMessages(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var m MessageLog
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			continue
		}
		s.messages = append(s.messages, m)
	}
	return sc.Err()
}
