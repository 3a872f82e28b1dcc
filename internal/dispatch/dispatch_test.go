package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"azanbot/internal/storage"
	"azanbot/pkg/logx"
)

type fakeGateway struct {
	mu    sync.Mutex
	texts []string
	polls []string
	err   error
}

func (f *fakeGateway) SendText(_ context.Context, _, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.err
}

func (f *fakeGateway) SendPoll(_ context.Context, _, _, question string, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls = append(f.polls, question)
	return f.err
}

func (f *fakeGateway) ListMembers(context.Context, string, string) ([]string, error) {
	return []string{"1", "2"}, nil
}

func (f *fakeGateway) RemoveMembers(context.Context, string, string, []string) error { return f.err }

func TestTrackedRecordsKindAndStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	gw := &fakeGateway{}
	tr := NewTracked(gw, store, logx.Nop())

	rctx := WithMeta(ctx, Meta{Kind: storage.KindReminder, Location: "Kochi", Prayer: "fajr"})
	if err := tr.SendText(rctx, "s", "d", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	gw.err = errors.New("blocked")
	if err := tr.SendPoll(WithMeta(ctx, Meta{Kind: storage.KindPoll}), "s", "u", "q?", []string{"a"}); err == nil {
		t.Fatalf("expected poll error")
	}

	st, err := store.MessageStats(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Total != 2 || st.Sent != 1 || st.Failed != 1 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestFailWrapsOnce(t *testing.T) {
	t.Parallel()
	base := errors.New("network down")
	err := Fail(OpSendText, "s", "d", base)
	var f *Failure
	if !errors.As(err, &f) || f.Op != OpSendText || !errors.Is(err, base) {
		t.Fatalf("err=%v", err)
	}
	if again := Fail(OpSendPoll, "s", "d", err); again != err {
		t.Fatalf("double wrapped: %v", again)
	}
	if Fail(OpSendText, "s", "d", nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	if _, ok := RetryAfterOf(err); ok {
		t.Fatalf("no retry-after expected")
	}
	flood := &Failure{Op: OpSendText, RetryAfter: 3 * time.Second, Err: base}
	if d, ok := RetryAfterOf(flood); !ok || d != 3*time.Second {
		t.Fatalf("retry-after=%s ok=%v", d, ok)
	}
}

func TestLimitedCancelledContext(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	l := NewLimited(gw)
	l.Configure("s", 0.001, 1)

	if err := l.SendText(context.Background(), "s", "d", "first"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.SendText(ctx, "s", "d", "second")
	var f *Failure
	if !errors.As(err, &f) || f.Op != OpSendText {
		t.Fatalf("err=%v, want throttled Failure", err)
	}
	if len(gw.texts) != 1 {
		t.Fatalf("texts=%v", gw.texts)
	}
}

func TestRender(t *testing.T) {
	t.Parallel()
	cases := []struct {
		tpl  string
		want string
	}{
		{"{{prayer}} at {{time}} in {{location}}, {{district}}", "Asr (Afternoon) at 3:45 PM in Kochi, Ernakulam"},
		{"no placeholders", "no placeholders"},
		{"{{unknown}} {{location}}", "{{unknown}} Kochi"},
	}
	v := Vars{Location: "Kochi", District: "Ernakulam", Prayer: "Asr (Afternoon)", Time: "3:45 PM"}
	for _, tc := range cases {
		if got := Render(tc.tpl, v); got != tc.want {
			t.Fatalf("Render(%q)=%q, want %q", tc.tpl, got, tc.want)
		}
	}
}
