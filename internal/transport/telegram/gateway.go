package telegram

import (
	"context"
	"sort"
	"sync"

	"azanbot/internal/dispatch"
	"azanbot/pkg/logx"
)

// Gateway routes dispatch calls to the session that owns them.
type Gateway struct {
	log logx.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewGateway(log logx.Logger) *Gateway {
	return &Gateway{log: log.With(logx.String("comp", "transport")), sessions: map[string]*Session{}}
}

// Add registers s, replacing any session with the same id.
func (g *Gateway) Add(s *Session) {
	g.mu.Lock()
	g.sessions[s.ID()] = s
	g.mu.Unlock()
}

// Remove unregisters and returns the session.
func (g *Gateway) Remove(id string) (*Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	delete(g.sessions, id)
	return s, ok
}

func (g *Gateway) session(op, sessionID, destinationID string) (*Session, error) {
	g.mu.RLock()
	s, ok := g.sessions[sessionID]
	g.mu.RUnlock()
	if !ok {
		return nil, dispatch.Fail(op, sessionID, destinationID, dispatch.ErrUnknownSession)
	}
	return s, nil
}

// ActiveSessions lists running sessions by id.
func (g *Gateway) ActiveSessions() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.sessions))
	for id, s := range g.sessions {
		if s.Running() {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// StartAll starts every session. A failing session is logged and skipped.
func (g *Gateway) StartAll(ctx context.Context) int {
	g.mu.RLock()
	list := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		list = append(list, s)
	}
	g.mu.RUnlock()

	started := 0
	for _, s := range list {
		if err := s.Start(ctx); err != nil {
			g.log.Error("transport.session_start_failed", logx.String("session", s.ID()), logx.Err(err))
			continue
		}
		started++
	}
	return started
}

func (g *Gateway) StopAll(ctx context.Context) {
	g.mu.RLock()
	list := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		list = append(list, s)
	}
	g.mu.RUnlock()
	for _, s := range list {
		if err := s.Stop(ctx); err != nil {
			g.log.Warn("transport.session_stop_failed", logx.String("session", s.ID()), logx.Err(err))
		}
	}
}

func (g *Gateway) SendText(ctx context.Context, sessionID, destinationID, text string) error {
	s, err := g.session(dispatch.OpSendText, sessionID, destinationID)
	if err != nil {
		return err
	}
	return s.sendText(ctx, destinationID, text)
}

func (g *Gateway) SendPoll(ctx context.Context, sessionID, destinationID, question string, options []string) error {
	s, err := g.session(dispatch.OpSendPoll, sessionID, destinationID)
	if err != nil {
		return err
	}
	return s.sendPoll(ctx, destinationID, question, options)
}

func (g *Gateway) ListMembers(ctx context.Context, sessionID, destinationID string) ([]string, error) {
	s, err := g.session(dispatch.OpListMembers, sessionID, destinationID)
	if err != nil {
		return nil, err
	}
	return s.listMembers(ctx, destinationID)
}

func (g *Gateway) RemoveMembers(ctx context.Context, sessionID, destinationID string, memberIDs []string) error {
	s, err := g.session(dispatch.OpRemoveMembers, sessionID, destinationID)
	if err != nil {
		return err
	}
	return s.removeMembers(ctx, destinationID, memberIDs)
}

func (g *Gateway) Session(id string) (*Session, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sessions[id]
	return s, ok
}
