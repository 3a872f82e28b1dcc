package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"azanbot/internal/clock"
	"azanbot/internal/dispatch"
	"azanbot/internal/eventbus"
	"azanbot/internal/prayer"
	"azanbot/internal/storage"
	"azanbot/pkg/logx"
)

func TestParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Command
	}{
		{"help", Command{Kind: Help}},
		{"/HELP", Command{Kind: Help}},
		{"/help@azan_bot", Command{Kind: Help}},
		{"  locations ", Command{Kind: Locations}},
		{"azan-today-Kochi", Command{Kind: Today, Location: "kochi"}},
		{"/azan-today-kozhikode north", Command{Kind: Today, Location: "kozhikode north"}},
		{"/azan-next-malap@azan_bot", Command{Kind: Next, Location: "malap"}},
		{"azan-kannur", Command{Kind: Today, Location: "kannur"}},
		{"azan-today-", Command{Kind: Today}},
		{"azan-next-", Command{Kind: Next}},
		{"hello", Command{Kind: None}},
		{"helpme", Command{Kind: None}},
		{"", Command{Kind: None}},
	}
	for _, tt := range tests {
		if got := Parse(tt.in); got != tt.want {
			t.Fatalf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

type fakeTimes struct {
	err error
}

var kochi = prayer.Location{ID: 807, Name: "Kochi", District: "Ernakulam"}

var day = prayer.DailyPrayerTimes{Date: "03-15", Fajr: "05:00", Dhuhr: "12:30", Asr: "15:45", Maghrib: "18:35", Isha: "19:50"}

func (f fakeTimes) FindLocationByName(q string) (prayer.Location, error) {
	if strings.Contains("kochi", q) {
		return kochi, nil
	}
	return prayer.Location{}, fmt.Errorf("location %q: %w", q, prayer.ErrNotFound)
}

func (f fakeTimes) ResolveToday(context.Context, int) (prayer.DailyPrayerTimes, error) {
	if f.err != nil {
		return prayer.DailyPrayerTimes{}, f.err
	}
	return day, nil
}

func (f fakeTimes) NextPrayer(_ context.Context, _ int, now string) (prayer.Next, error) {
	if f.err != nil {
		return prayer.Next{}, f.err
	}
	for _, p := range prayer.All {
		if day.Time(p) > now {
			return prayer.Next{Prayer: p, Time: day.Time(p)}, nil
		}
	}
	return prayer.Next{Prayer: prayer.Fajr, Time: day.Fajr, Tomorrow: true}, nil
}

func (fakeTimes) Locations() []prayer.Location { return []prayer.Location{kochi} }

func newHandler(times Times, hh, mm int, gw dispatch.Gateway) *Handler {
	clk := clock.New(clock.NewManual(time.Date(2026, 3, 15, hh, mm, 0, 0, clock.IST)))
	return NewHandler(times, clk, gw, logx.Nop())
}

func TestReplies(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		times Times
		hh    int
		text  string
		want  []string
	}{
		{"help", fakeTimes{}, 9, "help", []string{"Available Commands", "View all 1 available locations"}},
		{"locations", fakeTimes{}, 9, "locations", []string{"Available Locations (1)", "1. Kochi (Ernakulam)"}},
		{"today", fakeTimes{}, 9, "azan-today-kochi", []string{"Today's Prayer Times", "Kochi, Ernakulam", "15 Mar 2026", "• Asr (Afternoon): 15:45"}},
		{"default today", fakeTimes{}, 9, "azan-koch", []string{"Today's Prayer Times"}},
		{"next", fakeTimes{}, 9, "azan-next-kochi", []string{"Current Time: 09:00", "Next Prayer: Dhuhr", "Time: 12:30"}},
		{"next tomorrow", fakeTimes{}, 21, "azan-next-kochi", []string{"Next Prayer: Fajr (Tomorrow)", "Time: 05:00"}},
		{"missing location", fakeTimes{}, 9, "azan-next-", []string{"Please specify a location", "azan-next-kozhikode"}},
		{"unknown location", fakeTimes{}, 9, "azan-today-paris", []string{`Location "paris" not found`}},
		{"no table", fakeTimes{err: fmt.Errorf("x: %w", prayer.ErrNotFound)}, 9, "azan-today-kochi", []string{"Prayer times not available for Kochi"}},
		{"internal error", fakeTimes{err: &prayer.DataFormatError{LocationID: 807, Err: errors.New("bad")}}, 9, "azan-today-kochi", []string{ErrorReply}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHandler(tt.times, tt.hh, 0, nil)
			got, ok := h.Reply(context.Background(), tt.text)
			if !ok {
				t.Fatalf("Reply(%q) not recognized", tt.text)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Fatalf("reply missing %q:\n%s", w, got)
				}
			}
		})
	}
}

type replyGateway struct {
	mu   sync.Mutex
	to   []string
	kind storage.MessageKind
}

func (g *replyGateway) SendText(ctx context.Context, _, to, _ string) error {
	meta, _ := dispatch.MetaFrom(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.to = append(g.to, to)
	g.kind = meta.Kind
	return nil
}

func (g *replyGateway) SendPoll(context.Context, string, string, string, []string) error { return nil }
func (g *replyGateway) ListMembers(context.Context, string, string) ([]string, error)  { return nil, nil }
func (g *replyGateway) RemoveMembers(context.Context, string, string, []string) error  { return nil }

func TestHandleSendsOnlyCommands(t *testing.T) {
	t.Parallel()
	gw := &replyGateway{}
	h := newHandler(fakeTimes{}, 9, 0, gw)
	ctx := context.Background()
	if err := h.Handle(ctx, "s1", "42", "just chatting"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := h.Handle(ctx, "s1", "42", "/help"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(gw.to) != 1 || gw.to[0] != "42" || gw.kind != storage.KindReply {
		t.Fatalf("sent = %v kind %q", gw.to, gw.kind)
	}
}

func TestVoteRecorder(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()
	defer store.Close()
	clk := clock.New(clock.NewManual(time.Date(2026, 3, 15, 21, 0, 0, 0, clock.IST)))
	v := NewVoteRecorder(store, clk, logx.Nop())
	ctx := context.Background()

	if err := v.Record(ctx, eventbus.PollAnswer{SessionID: "s1", SubscriberID: "7", Options: []int{0, 2, 9}}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := v.Record(ctx, eventbus.PollAnswer{SessionID: "s1", SubscriberID: "7", Options: []int{0, 1, 2, 3, 4}}); err != nil {
		t.Fatalf("record: %v", err)
	}
	votes, err := store.ListVotes(ctx, "s1", "2026-03-15")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(votes) != 1 || len(votes[0].Prayers) != 5 || votes[0].Prayers[4] != "isha" {
		t.Fatalf("votes = %+v", votes)
	}
}
