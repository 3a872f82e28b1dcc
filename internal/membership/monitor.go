// Package membership enforces the one-group-per-subscriber policy.
//
// A subscriber found in more than one enabled destination of a session is
// warned privately. If a later re-check, made after the grace period, still
// finds them in several destinations they are removed from all of them.
package membership

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"azanbot/internal/clock"
	"azanbot/internal/dispatch"
	"azanbot/internal/eventbus"
	"azanbot/internal/registry"
	"azanbot/internal/storage"
	"azanbot/internal/task/engine"
	"azanbot/pkg/logx"
)

const sendTimeout = 30 * time.Second

// MembershipChangeEvent is published by the transport.
type MembershipChangeEvent = eventbus.MembershipChange

type Mappings interface {
	FindEnabledMappings(ctx context.Context, sessionID string) ([]registry.DestinationMapping, error)
	DisplayName(m registry.DestinationMapping) string
}

type Sessions interface {
	ActiveSessions() []string
}

// Tasks runs warnings and removals outside the caller.
type Tasks interface {
	Enqueue(t engine.Task) error
}

type Settings struct {
	Enabled   bool
	Exempt    []string
	WarnGrace time.Duration
	ScanMin   time.Duration
	ScanMax   time.Duration
}

func DefaultSettings() Settings {
	return Settings{Enabled: true, WarnGrace: 30 * time.Minute, ScanMin: time.Hour, ScanMax: 3 * time.Hour}
}

type settings struct {
	Settings
	exempt map[string]struct{}
}

type Deps struct {
	Mappings Mappings
	Gateway  dispatch.Gateway
	Store    storage.SubscriberStore
	Clock    *clock.Service
	Sessions Sessions
	Tasks    Tasks
	Log      logx.Logger
}

type Monitor struct {
	mappings Mappings
	gw       dispatch.Gateway
	store    storage.SubscriberStore
	clk      *clock.Service
	sessions Sessions
	tasks    Tasks
	log      logx.Logger

	cur atomic.Pointer[settings]

	mu       sync.Mutex
	nextScan map[string]time.Time
	rng      *rand.Rand
}

func New(d Deps) *Monitor {
	m := &Monitor{
		mappings: d.Mappings,
		gw:       d.Gateway,
		store:    d.Store,
		clk:      d.Clock,
		sessions: d.Sessions,
		tasks:    d.Tasks,
		log:      d.Log.With(logx.String("comp", "monitor")),
		nextScan: map[string]time.Time{},
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	m.Apply(DefaultSettings())
	return m
}

func (m *Monitor) Apply(s Settings) {
	def := DefaultSettings()
	if s.WarnGrace <= 0 {
		s.WarnGrace = def.WarnGrace
	}
	if s.ScanMin <= 0 {
		s.ScanMin = def.ScanMin
	}
	if s.ScanMax < s.ScanMin {
		s.ScanMax = s.ScanMin
	}
	ex := make(map[string]struct{}, len(s.Exempt))
	for _, id := range s.Exempt {
		ex[id] = struct{}{}
	}
	m.cur.Store(&settings{Settings: s, exempt: ex})
}

func (m *Monitor) settings() *settings { return m.cur.Load() }

func (m *Monitor) exempt(id string) bool {
	_, ok := m.settings().exempt[id]
	return ok
}

// index maps members to the enabled destinations they are in.
type index struct {
	mappings []registry.DestinationMapping
	members  map[string][]registry.DestinationMapping
}

func (ix index) of(id string) []registry.DestinationMapping { return ix.members[id] }

func (m *Monitor) buildIndex(ctx context.Context, sessionID string) (index, error) {
	ms, err := m.mappings.FindEnabledMappings(ctx, sessionID)
	if err != nil {
		return index{}, fmt.Errorf("list mappings: %w", err)
	}
	ix := index{mappings: ms, members: map[string][]registry.DestinationMapping{}}
	for _, mp := range ms {
		ids, err := m.gw.ListMembers(ctx, sessionID, mp.DestinationID)
		if err != nil {
			m.log.Warn("monitor.list_members_failed", logx.String("session", sessionID), logx.String("dest", mp.DestinationID), logx.Err(err))
			continue
		}
		for _, id := range ids {
			ix.members[id] = append(ix.members[id], mp)
		}
	}
	return ix, nil
}

// HandleEvent checks every added member. It never escalates.
func (m *Monitor) HandleEvent(ctx context.Context, ev MembershipChangeEvent) error {
	if !m.settings().Enabled || ev.Action != eventbus.ActionAdd {
		return nil
	}
	var ids []string
	for _, mem := range ev.Members {
		if mem.Bot || mem.Self || m.exempt(mem.ID) {
			continue
		}
		ids = append(ids, mem.ID)
	}
	if len(ids) == 0 {
		return nil
	}
	ix, err := m.buildIndex(ctx, ev.SessionID)
	if err != nil {
		return err
	}
	mapped := false
	for _, mp := range ix.mappings {
		if mp.DestinationID == ev.DestinationID {
			mapped = true
			break
		}
	}
	if !mapped {
		return nil
	}
	m.log.Debug("monitor.check_members", logx.String("session", ev.SessionID), logx.String("dest", ev.DestinationID), logx.Int("members", len(ids)))
	for _, id := range ids {
		if err := m.check(ctx, ev.SessionID, id, ix.of(id)); err != nil {
			m.log.Warn("monitor.check_failed", logx.String("session", ev.SessionID), logx.String("subscriber", id), logx.Err(err))
		}
	}
	return nil
}

// check warns on a fresh violation or resets a fixed one. The record is
// created pending and only becomes warned once the warning was delivered.
func (m *Monitor) check(ctx context.Context, sessionID, subscriberID string, dests []registry.DestinationMapping) error {
	if len(dests) <= 1 {
		return m.store.DeleteSubscriber(ctx, subscriberID, sessionID)
	}
	ids, names := m.describe(dests)
	rec, created, err := m.store.UpsertOrGetSubscriber(ctx, storage.MonitoredSubscriber{
		SubscriberID:     subscriberID,
		SessionID:        sessionID,
		DestinationIDs:   ids,
		DestinationNames: names,
		WarnedAt:         m.clk.Now(),
		Status:           storage.StatusPending,
	})
	if err != nil {
		return fmt.Errorf("record warning: %w", err)
	}
	if !created {
		return nil
	}
	err = m.tasks.Enqueue(engine.Task{
		Name:    "monitor.warn",
		Timeout: sendTimeout,
		Opt:     engine.TaskOptions{RetryMax: -1},
		Run:     func(ctx context.Context) error { return m.warn(ctx, rec) },
	})
	if err != nil {
		m.log.Warn("monitor.enqueue_failed", logx.String("task", "monitor.warn"), logx.String("subscriber", subscriberID), logx.Err(err))
		m.forget(context.WithoutCancel(ctx), rec)
		return err
	}
	return nil
}

// warn delivers the warning and starts the grace period. A failed delivery
// drops the record so the next check tries again.
func (m *Monitor) warn(ctx context.Context, rec storage.MonitoredSubscriber) error {
	wctx := dispatch.WithMeta(ctx, dispatch.Meta{Kind: storage.KindWarning})
	if err := m.gw.SendText(wctx, rec.SessionID, rec.SubscriberID, WarningText(rec.DestinationNames, m.settings().WarnGrace)); err != nil {
		m.log.Warn("monitor.warning_failed", logx.String("session", rec.SessionID), logx.String("subscriber", rec.SubscriberID), logx.Err(err))
		m.forget(context.WithoutCancel(ctx), rec)
		return engine.NoRetry(err)
	}
	rec.WarnedAt = m.clk.Now()
	rec.Status = storage.StatusWarned
	if err := m.store.UpdateSubscriber(ctx, rec); err != nil {
		return engine.NoRetry(fmt.Errorf("mark warned: %w", err))
	}
	m.log.Info("monitor.warned", logx.String("session", rec.SessionID), logx.String("subscriber", rec.SubscriberID), logx.Strings("destinations", rec.DestinationNames))
	return nil
}

func (m *Monitor) forget(ctx context.Context, rec storage.MonitoredSubscriber) {
	if err := m.store.DeleteSubscriber(ctx, rec.SubscriberID, rec.SessionID); err != nil {
		m.log.Warn("monitor.forget_failed", logx.String("subscriber", rec.SubscriberID), logx.Err(err))
	}
}

func (m *Monitor) describe(dests []registry.DestinationMapping) (ids, names []string) {
	for _, d := range dests {
		ids = append(ids, d.DestinationID)
		names = append(names, m.mappings.DisplayName(d))
	}
	return ids, names
}

// Tick runs the full scan when due and always sweeps warned records.
func (m *Monitor) Tick(ctx context.Context) error {
	if !m.settings().Enabled {
		return nil
	}
	now := m.clk.Now()
	for _, sid := range m.sessions.ActiveSessions() {
		if m.scanDue(sid, now) {
			if err := m.Scan(ctx, sid); err != nil {
				m.log.Warn("monitor.scan_failed", logx.String("session", sid), logx.Err(err))
			}
			m.rollScan(sid, now)
		}
		if err := m.Sweep(ctx, sid); err != nil {
			m.log.Warn("monitor.sweep_failed", logx.String("session", sid), logx.Err(err))
		}
	}
	return nil
}

func (m *Monitor) scanDue(sessionID string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !now.Before(m.nextScan[sessionID])
}

func (m *Monitor) rollScan(sessionID string, now time.Time) {
	st := m.settings()
	m.mu.Lock()
	span := st.ScanMax - st.ScanMin
	d := st.ScanMin
	if span > 0 {
		d += time.Duration(m.rng.Int63n(int64(span) + 1))
	}
	next := now.Add(d)
	m.nextScan[sessionID] = next
	m.mu.Unlock()
	m.log.Info("monitor.next_scan", logx.String("session", sessionID), logx.Duration("in", d))
}

// NextScan reports when the next full scan of sessionID is due.
func (m *Monitor) NextScan(sessionID string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextScan[sessionID]
}

// Scan resets the stored records of subscribers now in at most one
// destination, then checks every member found in more than one.
func (m *Monitor) Scan(ctx context.Context, sessionID string) error {
	ix, err := m.buildIndex(ctx, sessionID)
	if err != nil {
		return err
	}
	m.log.Info("monitor.scan", logx.String("session", sessionID), logx.Int("destinations", len(ix.mappings)), logx.Int("members", len(ix.members)))
	if err := m.resetFixed(ctx, sessionID, ix); err != nil {
		m.log.Warn("monitor.reset_failed", logx.String("session", sessionID), logx.Err(err))
	}
	// with one destination nobody can be a duplicate
	if len(ix.mappings) <= 1 {
		return nil
	}
	for id, dests := range ix.members {
		if len(dests) <= 1 || m.exempt(id) {
			continue
		}
		if err := m.check(ctx, sessionID, id, dests); err != nil {
			m.log.Warn("monitor.check_failed", logx.String("session", sessionID), logx.String("subscriber", id), logx.Err(err))
		}
	}
	return nil
}

// resetFixed deletes warned and removed records whose subscriber is in at
// most one destination. Pending records belong to an in-flight warning.
func (m *Monitor) resetFixed(ctx context.Context, sessionID string, ix index) error {
	recs, err := m.store.ListSubscribers(ctx, sessionID, "")
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	for _, rec := range recs {
		if rec.Status == storage.StatusPending || len(ix.of(rec.SubscriberID)) > 1 {
			continue
		}
		if err := m.store.DeleteSubscriber(ctx, rec.SubscriberID, sessionID); err != nil {
			m.log.Warn("monitor.reset_failed", logx.String("subscriber", rec.SubscriberID), logx.Err(err))
			continue
		}
		m.log.Info("monitor.reset", logx.String("session", sessionID), logx.String("subscriber", rec.SubscriberID), logx.String("was", string(rec.Status)))
	}
	return nil
}

// Sweep escalates warned records whose grace period has passed.
func (m *Monitor) Sweep(ctx context.Context, sessionID string) error {
	st := m.settings()
	now := m.clk.Now()
	m.expirePending(ctx, sessionID, now.Add(-st.WarnGrace))

	recs, err := m.store.ListSubscribers(ctx, sessionID, storage.StatusWarned)
	if err != nil {
		return fmt.Errorf("list warned: %w", err)
	}
	var ix *index
	for _, rec := range recs {
		if m.exempt(rec.SubscriberID) || now.Sub(rec.WarnedAt) < st.WarnGrace {
			continue
		}
		if ix == nil {
			built, err := m.buildIndex(ctx, sessionID)
			if err != nil {
				return err
			}
			ix = &built
		}
		dests := ix.of(rec.SubscriberID)
		if len(dests) <= 1 {
			if err := m.store.DeleteSubscriber(ctx, rec.SubscriberID, sessionID); err != nil {
				m.log.Warn("monitor.reset_failed", logx.String("subscriber", rec.SubscriberID), logx.Err(err))
				continue
			}
			m.log.Info("monitor.reset", logx.String("session", sessionID), logx.String("subscriber", rec.SubscriberID))
			continue
		}
		m.escalate(ctx, rec, dests)
	}
	return nil
}

// expirePending drops pending records older than cutoff. Their warning task
// never reported back, for example because the process stopped.
func (m *Monitor) expirePending(ctx context.Context, sessionID string, cutoff time.Time) {
	recs, err := m.store.ListSubscribers(ctx, sessionID, storage.StatusPending)
	if err != nil {
		m.log.Warn("monitor.list_pending_failed", logx.String("session", sessionID), logx.Err(err))
		return
	}
	for _, rec := range recs {
		if rec.WarnedAt.Before(cutoff) {
			m.forget(ctx, rec)
		}
	}
}

// escalate marks the record removed first so a later sweep cannot queue the
// same removal twice, then hands the removals to the task engine.
func (m *Monitor) escalate(ctx context.Context, rec storage.MonitoredSubscriber, dests []registry.DestinationMapping) {
	ids, names := m.describe(dests)
	rec.DestinationIDs = ids
	rec.DestinationNames = names
	rec.Status = storage.StatusRemoved
	if err := m.store.UpdateSubscriber(ctx, rec); err != nil {
		m.log.Warn("monitor.update_failed", logx.String("subscriber", rec.SubscriberID), logx.Err(err))
		return
	}
	err := m.tasks.Enqueue(engine.Task{
		Name:    "monitor.remove",
		Timeout: sendTimeout,
		Opt:     engine.TaskOptions{RetryMax: -1},
		Run: func(ctx context.Context) error {
			m.remove(ctx, rec)
			return nil
		},
	})
	if err != nil {
		m.log.Warn("monitor.enqueue_failed", logx.String("task", "monitor.remove"), logx.String("subscriber", rec.SubscriberID), logx.Err(err))
	}
}

// remove is best-effort per destination. The notice goes out even when some
// removals failed.
func (m *Monitor) remove(ctx context.Context, rec storage.MonitoredSubscriber) {
	failed := 0
	for _, dest := range rec.DestinationIDs {
		if err := m.gw.RemoveMembers(ctx, rec.SessionID, dest, []string{rec.SubscriberID}); err != nil {
			failed++
			m.log.Warn("monitor.remove_failed", logx.String("session", rec.SessionID), logx.String("dest", dest), logx.String("subscriber", rec.SubscriberID), logx.Err(err))
		}
	}
	rctx := dispatch.WithMeta(ctx, dispatch.Meta{Kind: storage.KindRemoval})
	if err := m.gw.SendText(rctx, rec.SessionID, rec.SubscriberID, RemovalText(rec.DestinationNames, m.settings().WarnGrace)); err != nil {
		m.log.Warn("monitor.removal_notice_failed", logx.String("subscriber", rec.SubscriberID), logx.Err(err))
	}
	m.log.Info("monitor.removed", logx.String("session", rec.SessionID), logx.String("subscriber", rec.SubscriberID), logx.Strings("destinations", rec.DestinationNames), logx.Int("failed", failed))
}

// Watch feeds membership events into HandleEvent until ctx ends.
func (m *Monitor) Watch(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(64, eventbus.TypeMembershipChanged)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return fmt.Errorf("monitor: bus closed")
			}
			change, ok := ev.Data.(eventbus.MembershipChange)
			if !ok {
				continue
			}
			if err := m.HandleEvent(ctx, change); err != nil {
				m.log.Warn("monitor.event_failed", logx.String("session", change.SessionID), logx.Err(err))
			}
		}
	}
}
