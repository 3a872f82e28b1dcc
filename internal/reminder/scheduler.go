// Package reminder drives the per-minute prayer reminders, follow-up
// questions, the nightly summary poll and the morning digest.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"azanbot/internal/clock"
	"azanbot/internal/dispatch"
	"azanbot/internal/eventbus"
	"azanbot/internal/prayer"
	"azanbot/internal/registry"
	"azanbot/internal/storage"
	"azanbot/internal/task/engine"
	"azanbot/pkg/logx"
)

// Times resolves prayer tables.
type Times interface {
	ResolveForDate(ctx context.Context, locationID int, monthDay string) (prayer.DailyPrayerTimes, error)
	Lookup(id int) (prayer.Location, bool)
}

// Mappings lists the destinations of a session.
type Mappings interface {
	FindEnabledMappings(ctx context.Context, sessionID string) ([]registry.DestinationMapping, error)
	DisplayName(m registry.DestinationMapping) string
}

// Tasks runs sends off the tick.
type Tasks interface {
	Enqueue(t engine.Task) error
}

// Timers holds delayed one-shot jobs.
type Timers interface {
	AddOnce(name string, at time.Time, timeout time.Duration, opt engine.TaskOptions, job func(ctx context.Context) error) (string, error)
	RemovePrefix(prefix string) int
}

// Sessions lists the sessions currently able to send.
type Sessions interface {
	ActiveSessions() []string
}

// Settings are the reloadable knobs.
type Settings struct {
	Prayers          []prayer.Prayer
	ReminderTemplate string
	FollowUpTemplate string
	FollowUps        bool
	Digest           bool
	IshaPoll         bool
	PollDelayMin     time.Duration
	PollDelayMax     time.Duration
	// DigestStart is the first minute ("HH:MM") of the 31 minute digest window.
	DigestStart string
}

func DefaultSettings() Settings {
	return Settings{
		Prayers:      append([]prayer.Prayer(nil), prayer.All...),
		FollowUps:    true,
		Digest:       true,
		IshaPoll:     true,
		PollDelayMin: 5 * time.Second,
		PollDelayMax: 30 * time.Second,
		DigestStart:  "04:00",
	}
}

const (
	followUpMin, followUpMax = 20, 60
	pollMin, pollMax         = 20, 200
	digestSpread             = 31

	sendTimeout = 30 * time.Second
)

type Deps struct {
	Times    Times
	Mappings Mappings
	Gateway  dispatch.Gateway
	Clock    *clock.Service
	Tasks    Tasks
	Timers   Timers
	Sessions Sessions
	Ledger   Ledger
	Log      logx.Logger
}

type Scheduler struct {
	times    Times
	mappings Mappings
	gw       dispatch.Gateway
	clk      *clock.Service
	tasks    Tasks
	timers   Timers
	sessions Sessions
	ledger   Ledger
	log      logx.Logger

	settings atomic.Pointer[Settings]

	rngMu sync.Mutex
	rng   *rand.Rand
}

func New(d Deps) *Scheduler {
	if d.Ledger == nil {
		d.Ledger = NewMemoryLedger()
	}
	s := &Scheduler{
		times:    d.Times,
		mappings: d.Mappings,
		gw:       d.Gateway,
		clk:      d.Clock,
		tasks:    d.Tasks,
		timers:   d.Timers,
		sessions: d.Sessions,
		ledger:   d.Ledger,
		log:      d.Log.With(logx.String("comp", "reminder")),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	def := DefaultSettings()
	s.settings.Store(&def)
	return s
}

// Apply swaps the settings used from the next tick on.
func (s *Scheduler) Apply(st Settings) {
	if len(st.Prayers) == 0 {
		st.Prayers = append([]prayer.Prayer(nil), prayer.All...)
	}
	if st.DigestStart == "" {
		st.DigestStart = "04:00"
	}
	if st.PollDelayMax < st.PollDelayMin {
		st.PollDelayMax = st.PollDelayMin
	}
	s.settings.Store(&st)
}

func (s *Scheduler) Settings() Settings { return *s.settings.Load() }

// unit is one enabled mapping with today's table.
type unit struct {
	session string
	mapping registry.DestinationMapping
	loc     prayer.Location
	times   prayer.DailyPrayerTimes
}

// Tick runs one minute of work. Per-unit failures are logged and never end
// the tick.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.clk.Now()
	today := clock.MonthDay(now)
	hhmm := now.Format("15:04")
	if err := s.ledger.Rollover(ctx, now.Format("2006-01-02")); err != nil {
		s.log.Warn("reminder.rollover_failed", logx.Err(err))
	}
	st := s.Settings()

	units := s.collect(ctx, today)
	s.reminders(ctx, st, units, hhmm)
	if st.FollowUps {
		s.followUps(ctx, st, units, today, hhmm)
	}
	if st.IshaPoll {
		s.ishaPolls(ctx, st, units, today, hhmm, now)
	}
	if st.Digest {
		s.digests(ctx, st, units, today, hhmm, now)
	}
	return nil
}

func (s *Scheduler) collect(ctx context.Context, today string) []unit {
	var out []unit
	for _, sid := range s.sessions.ActiveSessions() {
		ms, err := s.mappings.FindEnabledMappings(ctx, sid)
		if err != nil {
			s.log.Warn("reminder.mappings_failed", logx.String("session", sid), logx.Err(err))
			continue
		}
		for _, m := range ms {
			times, err := s.times.ResolveForDate(ctx, m.LocationID, today)
			if err != nil {
				s.log.Warn("reminder.times_failed", logx.String("session", sid), logx.Int("location", m.LocationID), logx.Err(err))
				continue
			}
			loc, _ := s.times.Lookup(m.LocationID)
			loc.ID = m.LocationID
			loc.Name = s.mappings.DisplayName(m)
			out = append(out, unit{session: sid, mapping: m, loc: loc, times: times})
		}
	}
	return out
}

func (s *Scheduler) reminders(ctx context.Context, st Settings, units []unit, hhmm string) {
	for _, u := range units {
		for _, p := range st.Prayers {
			t := u.times.Time(p)
			if t == "" || t != hhmm {
				continue
			}
			text := ReminderText(st.ReminderTemplate, u.loc, p, t)
			s.send(u, storage.KindReminder, p, text)
		}
	}
}

func (s *Scheduler) followUps(ctx context.Context, st Settings, units []unit, today, hhmm string) {
	for _, u := range units {
		for _, p := range st.Prayers {
			t := u.times.Time(p)
			if t == "" {
				continue
			}
			off := clock.SeededOffset(u.mapping.DestinationID+string(p)+today, followUpMin, followUpMax)
			if clock.AddMinutes(t, off) != hhmm {
				continue
			}
			if !s.mark(ctx, NSFollowUp, Key(u.session, u.mapping.DestinationID, string(p), today)) {
				continue
			}
			s.send(u, storage.KindFollowUp, p, FollowUpText(st.FollowUpTemplate, u.loc, p, t))
		}
	}
}

func (s *Scheduler) ishaPolls(ctx context.Context, st Settings, units []unit, today, hhmm string, now time.Time) {
	for _, u := range units {
		if u.times.Isha == "" {
			continue
		}
		off := clock.SeededOffset(u.mapping.DestinationID+today, pollMin, pollMax)
		if clock.AddMinutes(u.times.Isha, off) != hhmm {
			continue
		}
		if !s.mark(ctx, NSPoll, Key(u.session, u.mapping.DestinationID, today)) {
			continue
		}
		s.log.Info("reminder.poll_triggered", logx.String("session", u.session), logx.String("dest", u.mapping.DestinationID), logx.Int("offset_min", off))
		u := u
		err := s.tasks.Enqueue(engine.Task{
			Name:    "send.poll_fanout",
			Timeout: sendTimeout,
			Opt:     engine.TaskOptions{RetryMax: -1},
			Run: func(ctx context.Context) error {
				return s.fanOutPolls(ctx, st, u, now)
			},
		})
		if err != nil {
			s.log.Warn("reminder.enqueue_failed", logx.String("task", "send.poll_fanout"), logx.Err(err))
		}
	}
}

// PollPrefix is the timer name prefix of a session's pending polls.
func PollPrefix(sessionID string) string { return "poll/" + sessionID + "/" }

func (s *Scheduler) fanOutPolls(ctx context.Context, st Settings, u unit, now time.Time) error {
	members, err := s.gw.ListMembers(ctx, u.session, u.mapping.DestinationID)
	if err != nil {
		s.log.Warn("reminder.list_members_failed", logx.String("session", u.session), logx.String("dest", u.mapping.DestinationID), logx.Err(err))
		return engine.NoRetry(err)
	}
	scheduled := 0
	for _, member := range members {
		member := member
		name := PollPrefix(u.session) + u.mapping.DestinationID + "/" + member
		at := now.Add(s.pollDelay(st))
		_, err := s.timers.AddOnce(name, at, sendTimeout, engine.TaskOptions{RetryMax: -1}, func(ctx context.Context) error {
			ctx = dispatch.WithMeta(ctx, dispatch.Meta{Kind: storage.KindPoll, Location: u.loc.Name, Prayer: string(prayer.Isha)})
			if err := s.gw.SendPoll(ctx, u.session, member, PollQuestion, PollOptions); err != nil {
				s.log.Warn("reminder.poll_failed", logx.String("session", u.session), logx.String("member", member), logx.Err(err))
				return engine.NoRetry(err)
			}
			return nil
		})
		if err != nil {
			s.log.Warn("reminder.poll_schedule_failed", logx.String("member", member), logx.Err(err))
			continue
		}
		scheduled++
	}
	s.log.Info("reminder.polls_scheduled", logx.String("session", u.session), logx.String("dest", u.mapping.DestinationID), logx.Int("members", scheduled))
	return nil
}

func (s *Scheduler) pollDelay(st Settings) time.Duration {
	span := st.PollDelayMax - st.PollDelayMin
	if span <= 0 {
		return st.PollDelayMin
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return st.PollDelayMin + time.Duration(s.rng.Int63n(int64(span)+1))
}

// DigestMinute is the minute within the window the digest goes to dest.
func DigestMinute(destinationID, today string) int {
	return clock.SeededOffset(destinationID+today, 0, digestSpread)
}

func (s *Scheduler) digests(ctx context.Context, st Settings, units []unit, today, hhmm string, now time.Time) {
	for _, u := range units {
		if clock.AddMinutes(st.DigestStart, DigestMinute(u.mapping.DestinationID, today)) != hhmm {
			continue
		}
		if !s.mark(ctx, NSDigest, Key(u.session, u.mapping.DestinationID, today)) {
			continue
		}
		s.send(u, storage.KindDigest, "", DigestText(u.loc.Name, now, u.times))
	}
}

// mark reports whether the key is new. A ledger error skips the send.
func (s *Scheduler) mark(ctx context.Context, ns, key string) bool {
	ok, err := s.ledger.Mark(ctx, ns, key)
	if err != nil {
		s.log.Warn("reminder.ledger_failed", logx.String("ns", ns), logx.Err(err))
		return false
	}
	return ok
}

func (s *Scheduler) send(u unit, kind storage.MessageKind, p prayer.Prayer, text string) {
	name := "send." + string(kind)
	err := s.tasks.Enqueue(engine.Task{
		Name:    name,
		Timeout: sendTimeout,
		Run: func(ctx context.Context) error {
			ctx = dispatch.WithMeta(ctx, dispatch.Meta{Kind: kind, Location: u.loc.Name, Prayer: string(p)})
			err := s.gw.SendText(ctx, u.session, u.mapping.DestinationID, text)
			if err == nil {
				s.log.Info("reminder.sent", logx.String("kind", string(kind)), logx.String("session", u.session), logx.String("location", u.loc.Name), logx.String("prayer", string(p)))
				return nil
			}
			return retryable(err)
		},
	})
	if err != nil {
		s.log.Warn("reminder.enqueue_failed", logx.String("task", name), logx.Err(err))
	}
}

// retryable turns platform back-off hints into engine retry delays and stops
// retrying on unknown sessions.
func retryable(err error) error {
	if errors.Is(err, dispatch.ErrUnknownSession) {
		return engine.NoRetry(err)
	}
	if d, ok := dispatch.RetryAfterOf(err); ok {
		return engine.RetryAfter(err, d)
	}
	return err
}

// CancelSession drops the session's pending polls.
func (s *Scheduler) CancelSession(sessionID string) int {
	n := s.timers.RemovePrefix(PollPrefix(sessionID))
	if n > 0 {
		s.log.Info("reminder.polls_cancelled", logx.String("session", sessionID), logx.Int("count", n))
	}
	return n
}

// Watch cancels pending polls of sessions that disconnect until ctx ends.
func (s *Scheduler) Watch(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(16, eventbus.TypeSessionDisconnected)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return fmt.Errorf("reminder: bus closed")
			}
			if st, ok := ev.Data.(eventbus.SessionState); ok {
				s.CancelSession(st.SessionID)
			}
		}
	}
}
