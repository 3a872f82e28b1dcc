package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"azanbot/internal/dispatch"
	"azanbot/internal/eventbus"
	"azanbot/internal/storage"
	"azanbot/pkg/logx"
)

// TextHandler receives private text messages.
type TextHandler func(ctx context.Context, sessionID, chatID, text string)

// api is the subset of *tele.Bot used for outbound calls.
type api interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Ban(chat *tele.Chat, member *tele.ChatMember, revokeMessages ...bool) error
	Unban(chat *tele.Chat, user *tele.User, forBanned ...bool) error
}

// Session runs one bot token. The Bot API cannot enumerate group members, so
// the session keeps a roster from joins, leaves and message senders.
type Session struct {
	cfg    Config
	log    logx.Logger
	bus    eventbus.Bus
	roster storage.RosterStore
	onText TextHandler

	bot  *tele.Bot
	api  api
	self int64

	runMu     sync.Mutex
	running   bool
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
}

// NewSession builds the bot. It calls getMe, so a bad token fails here.
func NewSession(cfg Config, roster storage.RosterStore, bus eventbus.Bus, log logx.Logger) (*Session, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	s := newSession(cfg, roster, bus, log)
	b, err := tele.NewBot(tele.Settings{
		Token: cfg.Token,
		Poller: &tele.LongPoller{
			Timeout:        cfg.pollTimeout(),
			AllowedUpdates: []string{"message", "chat_member", "poll_answer"},
		},
		OnError: func(err error, _ tele.Context) {
			s.log.Warn("telegram.handler_failed", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	s.bot = b
	s.api = b
	if b.Me != nil {
		s.self = b.Me.ID
	}
	s.routes()
	return s, nil
}

func newSession(cfg Config, roster storage.RosterStore, bus eventbus.Bus, log logx.Logger) *Session {
	return &Session{
		cfg:    cfg,
		roster: roster,
		bus:    bus,
		log:    log.With(logx.String("comp", "telegram"), logx.String("session", cfg.SessionID)),
	}
}

func (s *Session) ID() string { return s.cfg.SessionID }

// OnText sets the private message handler. Call before Start.
func (s *Session) OnText(h TextHandler) { s.onText = h }

func (s *Session) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

func (s *Session) routes() {
	s.bot.Handle(tele.OnText, func(c tele.Context) error {
		s.handleText(c.Chat(), c.Sender(), c.Text())
		return nil
	})
	s.bot.Handle(tele.OnUserJoined, func(c tele.Context) error {
		m := c.Message()
		if m == nil {
			return nil
		}
		users := m.UsersJoined
		if len(users) == 0 && m.UserJoined != nil {
			users = []tele.User{*m.UserJoined}
		}
		s.joined(m.Chat, users)
		return nil
	})
	s.bot.Handle(tele.OnUserLeft, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.UserLeft == nil {
			return nil
		}
		s.left(m.Chat, []tele.User{*m.UserLeft})
		return nil
	})
	s.bot.Handle(tele.OnChatMember, func(c tele.Context) error {
		u := c.ChatMember()
		if u == nil || u.NewChatMember == nil || u.NewChatMember.User == nil {
			return nil
		}
		user := *u.NewChatMember.User
		switch u.NewChatMember.Role {
		case tele.Left, tele.Kicked:
			s.left(u.Chat, []tele.User{user})
		default:
			if u.OldChatMember != nil && (u.OldChatMember.Role == tele.Left || u.OldChatMember.Role == tele.Kicked) {
				s.joined(u.Chat, []tele.User{user})
			}
		}
		return nil
	})
	s.bot.Handle(tele.OnPollAnswer, func(c tele.Context) error {
		a := c.PollAnswer()
		if a == nil || a.Sender == nil {
			return nil
		}
		s.bus.Publish(eventbus.Event{Type: eventbus.TypePollAnswered, Time: time.Now(), Data: eventbus.PollAnswer{
			SessionID:    s.cfg.SessionID,
			SubscriberID: strconv.FormatInt(a.Sender.ID, 10),
			PollID:       a.PollID,
			Options:      a.Options,
		}})
		return nil
	})
}

func isGroup(c *tele.Chat) bool {
	return c != nil && (c.Type == tele.ChatGroup || c.Type == tele.ChatSuperGroup)
}

func (s *Session) handleText(chat *tele.Chat, sender *tele.User, text string) {
	if chat == nil {
		return
	}
	if isGroup(chat) {
		if sender != nil && !sender.IsBot {
			s.remember(chat, []tele.User{*sender})
		}
		return
	}
	if chat.Type == tele.ChatPrivate && s.onText != nil {
		s.onText(context.Background(), s.cfg.SessionID, strconv.FormatInt(chat.ID, 10), text)
	}
}

func (s *Session) member(u tele.User) eventbus.Member {
	return eventbus.Member{ID: strconv.FormatInt(u.ID, 10), Bot: u.IsBot, Self: u.ID == s.self}
}

// remember adds senders to the roster without raising a membership event.
func (s *Session) remember(chat *tele.Chat, users []tele.User) {
	ids := s.humanIDs(users)
	if len(ids) == 0 || s.roster == nil {
		return
	}
	if err := s.roster.AddRosterMembers(context.Background(), s.cfg.SessionID, strconv.FormatInt(chat.ID, 10), ids); err != nil {
		s.log.Warn("telegram.roster_failed", logx.Err(err))
	}
}

func (s *Session) humanIDs(users []tele.User) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		if u.IsBot || u.ID == s.self {
			continue
		}
		ids = append(ids, strconv.FormatInt(u.ID, 10))
	}
	return ids
}

func (s *Session) joined(chat *tele.Chat, users []tele.User) {
	if !isGroup(chat) || len(users) == 0 {
		return
	}
	s.remember(chat, users)
	s.publishChange(eventbus.ActionAdd, chat, users)
}

func (s *Session) left(chat *tele.Chat, users []tele.User) {
	if !isGroup(chat) || len(users) == 0 {
		return
	}
	if ids := s.humanIDs(users); len(ids) > 0 && s.roster != nil {
		if err := s.roster.RemoveRosterMembers(context.Background(), s.cfg.SessionID, strconv.FormatInt(chat.ID, 10), ids); err != nil {
			s.log.Warn("telegram.roster_failed", logx.Err(err))
		}
	}
	s.publishChange(eventbus.ActionRemove, chat, users)
}

func (s *Session) publishChange(action eventbus.MembershipAction, chat *tele.Chat, users []tele.User) {
	members := make([]eventbus.Member, 0, len(users))
	for _, u := range users {
		members = append(members, s.member(u))
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeMembershipChanged, Time: time.Now(), Data: eventbus.MembershipChange{
		Action:        action,
		SessionID:     s.cfg.SessionID,
		DestinationID: strconv.FormatInt(chat.ID, 10),
		Members:       members,
	}})
}

// Start begins long polling. It returns immediately.
func (s *Session) Start(ctx context.Context) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return nil
	}
	if s.bot == nil {
		s.runMu.Unlock()
		return errors.New("telegram session has no bot")
	}
	s.running = true
	rctx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	s.runWG.Add(1)
	s.runMu.Unlock()

	go func() {
		defer s.runWG.Done()
		go func() {
			<-rctx.Done()
			s.bot.Stop()
		}()
		s.log.Info("telegram.polling_started")
		s.bot.Start()
	}()
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeSessionConnected, Time: time.Now(), Data: eventbus.SessionState{SessionID: s.cfg.SessionID}})
	return nil
}

// Stop ends polling. It waits at most a short grace period for getUpdates.
func (s *Session) Stop(ctx context.Context) error {
	s.runMu.Lock()
	cancel := s.runCancel
	s.runCancel = nil
	wasRunning := s.running
	s.running = false
	s.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeSessionDisconnected, Time: time.Now(), Data: eventbus.SessionState{SessionID: s.cfg.SessionID}})
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.runWG.Wait()
		close(done)
	}()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		s.log.Info("telegram.polling_stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		s.log.Warn("telegram.stop_grace_elapsed")
		return nil
	}
}

func (s *Session) sendText(ctx context.Context, destinationID, text string) error {
	id, err := chatID(dispatch.OpSendText, s.cfg.SessionID, destinationID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dispatch.Fail(dispatch.OpSendText, s.cfg.SessionID, destinationID, err)
	}
	_, err = s.api.Send(tele.ChatID(id), text, &tele.SendOptions{ParseMode: tele.ModeMarkdown, DisableWebPagePreview: true})
	return failure(dispatch.OpSendText, s.cfg.SessionID, destinationID, err)
}

func (s *Session) sendPoll(ctx context.Context, destinationID, question string, options []string) error {
	id, err := chatID(dispatch.OpSendPoll, s.cfg.SessionID, destinationID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dispatch.Fail(dispatch.OpSendPoll, s.cfg.SessionID, destinationID, err)
	}
	poll := &tele.Poll{
		Type:            tele.PollRegular,
		Question:        question,
		MultipleAnswers: true,
	}
	for _, o := range options {
		poll.Options = append(poll.Options, tele.PollOption{Text: o})
	}
	_, err = s.api.Send(tele.ChatID(id), poll)
	return failure(dispatch.OpSendPoll, s.cfg.SessionID, destinationID, err)
}

func (s *Session) listMembers(ctx context.Context, destinationID string) ([]string, error) {
	if s.roster == nil {
		return nil, nil
	}
	ids, err := s.roster.ListRoster(ctx, s.cfg.SessionID, destinationID)
	if err != nil {
		return nil, dispatch.Fail(dispatch.OpListMembers, s.cfg.SessionID, destinationID, err)
	}
	return ids, nil
}

// removeMembers kicks each member (ban, then unban) and drops them from the
// roster. The first error is returned after every member was tried.
func (s *Session) removeMembers(ctx context.Context, destinationID string, memberIDs []string) error {
	id, err := chatID(dispatch.OpRemoveMembers, s.cfg.SessionID, destinationID)
	if err != nil {
		return err
	}
	chat := &tele.Chat{ID: id}
	var first error
	var removed []string
	for _, m := range memberIDs {
		uid, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			if first == nil {
				first = fmt.Errorf("bad member id %q: %w", m, err)
			}
			continue
		}
		user := &tele.User{ID: uid}
		if err := s.api.Ban(chat, &tele.ChatMember{User: user}); err != nil {
			if first == nil {
				first = failure(dispatch.OpRemoveMembers, s.cfg.SessionID, destinationID, err)
			}
			continue
		}
		if err := s.api.Unban(chat, user, true); err != nil {
			s.log.Warn("telegram.unban_failed", logx.String("member", m), logx.Err(err))
		}
		removed = append(removed, m)
	}
	if len(removed) > 0 && s.roster != nil {
		if err := s.roster.RemoveRosterMembers(ctx, s.cfg.SessionID, destinationID, removed); err != nil {
			s.log.Warn("telegram.roster_failed", logx.Err(err))
		}
	}
	return dispatch.Fail(dispatch.OpRemoveMembers, s.cfg.SessionID, destinationID, first)
}
