package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"azanbot/internal/dispatch"
	"azanbot/internal/eventbus"
	"azanbot/internal/storage"
	"azanbot/pkg/logx"
)

type sentMsg struct {
	to   tele.Recipient
	what interface{}
}

type fakeAPI struct {
	mu      sync.Mutex
	sent    []sentMsg
	banned  []int64
	unban   []int64
	sendErr error
	banErr  map[int64]error
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{to: to, what: what})
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &tele.Message{ID: len(f.sent)}, nil
}

func (f *fakeAPI) Ban(_ *tele.Chat, m *tele.ChatMember, _ ...bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.banErr[m.User.ID]; err != nil {
		return err
	}
	f.banned = append(f.banned, m.User.ID)
	return nil
}

func (f *fakeAPI) Unban(_ *tele.Chat, u *tele.User, _ ...bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unban = append(f.unban, u.ID)
	return nil
}

func testSession(t *testing.T) (*Session, *fakeAPI, storage.Store, eventbus.Bus) {
	t.Helper()
	store := storage.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	bus := eventbus.New()
	s := newSession(Config{SessionID: "s1"}, store, bus, logx.Nop())
	api := &fakeAPI{}
	s.api = api
	s.self = 999
	return s, api, store, bus
}

func TestGatewayUnknownSession(t *testing.T) {
	t.Parallel()
	g := NewGateway(logx.Nop())
	err := g.SendText(context.Background(), "nope", "1", "hi")
	var f *dispatch.Failure
	if !errors.As(err, &f) || f.Op != dispatch.OpSendText || !errors.Is(err, dispatch.ErrUnknownSession) {
		t.Fatalf("err = %v", err)
	}
	if len(g.ActiveSessions()) != 0 {
		t.Fatalf("no session is running")
	}
}

func TestSendTextAndPoll(t *testing.T) {
	t.Parallel()
	s, api, _, _ := testSession(t)
	g := NewGateway(logx.Nop())
	g.Add(s)
	ctx := context.Background()

	if err := g.SendText(ctx, "s1", "-1001", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := g.SendPoll(ctx, "s1", "42", "Q?", []string{"a", "b"}); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(api.sent) != 2 {
		t.Fatalf("sent = %d", len(api.sent))
	}
	if api.sent[0].to.Recipient() != "-1001" || api.sent[0].what != "hello" {
		t.Fatalf("text = %+v", api.sent[0])
	}
	poll, ok := api.sent[1].what.(*tele.Poll)
	if !ok || poll.Question != "Q?" || len(poll.Options) != 2 || poll.Anonymous || !poll.MultipleAnswers {
		t.Fatalf("poll = %+v", api.sent[1].what)
	}
}

func TestSendErrors(t *testing.T) {
	t.Parallel()
	s, api, _, _ := testSession(t)
	ctx := context.Background()

	err := s.sendText(ctx, "not-a-chat", "x")
	var f *dispatch.Failure
	if !errors.As(err, &f) || f.DestinationID != "not-a-chat" {
		t.Fatalf("err = %v", err)
	}

	api.sendErr = tele.FloodError{RetryAfter: 7}
	err = s.sendText(ctx, "1", "x")
	if d, ok := dispatch.RetryAfterOf(err); !ok || d != 7*time.Second {
		t.Fatalf("retry after = %s, %v", d, ok)
	}

	api.sendErr = errors.New("forbidden")
	err = s.sendText(ctx, "1", "x")
	if _, ok := dispatch.RetryAfterOf(err); ok {
		t.Fatalf("plain errors carry no back-off")
	}
	if !errors.As(err, &f) || f.Op != dispatch.OpSendText {
		t.Fatalf("err = %v", err)
	}
}

func TestRosterFromJoinsAndLeaves(t *testing.T) {
	t.Parallel()
	s, _, store, bus := testSession(t)
	ch, unsub := bus.Subscribe(8, eventbus.TypeMembershipChanged)
	defer unsub()
	group := &tele.Chat{ID: -100, Type: tele.ChatSuperGroup}

	s.joined(group, []tele.User{{ID: 1}, {ID: 2, IsBot: true}, {ID: 999}})
	ev := <-ch
	change := ev.Data.(eventbus.MembershipChange)
	if change.Action != eventbus.ActionAdd || change.DestinationID != "-100" || len(change.Members) != 3 {
		t.Fatalf("change = %+v", change)
	}
	if !change.Members[1].Bot || !change.Members[2].Self {
		t.Fatalf("members = %+v", change.Members)
	}

	s.handleText(group, &tele.User{ID: 3}, "salaam")
	ids, _ := s.listMembers(context.Background(), "-100")
	if len(ids) != 2 {
		t.Fatalf("roster = %v, want humans 1 and 3", ids)
	}

	s.left(group, []tele.User{{ID: 1}})
	if ev := <-ch; ev.Data.(eventbus.MembershipChange).Action != eventbus.ActionRemove {
		t.Fatalf("expected remove event")
	}
	ids, _ = store.ListRoster(context.Background(), "s1", "-100")
	if len(ids) != 1 || ids[0] != "3" {
		t.Fatalf("roster = %v", ids)
	}
}

func TestPrivateTextGoesToHandler(t *testing.T) {
	t.Parallel()
	s, _, _, _ := testSession(t)
	var got []string
	s.OnText(func(_ context.Context, sid, chat, text string) {
		got = append(got, sid+"/"+chat+"/"+text)
	})
	s.handleText(&tele.Chat{ID: 42, Type: tele.ChatPrivate}, &tele.User{ID: 42}, "help")
	s.handleText(&tele.Chat{ID: -5, Type: tele.ChatGroup}, &tele.User{ID: 42}, "help")
	if len(got) != 1 || got[0] != "s1/42/help" {
		t.Fatalf("got = %v", got)
	}
}

func TestRemoveMembers(t *testing.T) {
	t.Parallel()
	s, api, store, _ := testSession(t)
	ctx := context.Background()
	_ = store.AddRosterMembers(ctx, "s1", "-100", []string{"1", "2", "3"})
	api.banErr = map[int64]error{2: errors.New("not enough rights")}

	err := s.removeMembers(ctx, "-100", []string{"1", "2", "3"})
	if err == nil {
		t.Fatalf("expected the ban failure to surface")
	}
	if len(api.banned) != 2 || len(api.unban) != 2 {
		t.Fatalf("banned %v unbanned %v", api.banned, api.unban)
	}
	ids, _ := store.ListRoster(ctx, "s1", "-100")
	if len(ids) != 1 || ids[0] != "2" {
		t.Fatalf("roster = %v", ids)
	}
}
