package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"azanbot/internal/clock"
	"azanbot/internal/task/engine"
	"azanbot/pkg/logx"
)

func newTestScheduler(t *testing.T) *Service {
	t.Helper()
	eng := engine.New(engine.Config{Enabled: true, Workers: 2}, logx.Nop(), nil)
	eng.Start(context.Background())
	s := New(Config{Enabled: true}, eng, logx.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
		eng.Stop(ctx)
	})
	return s
}

func TestAddOnceRuns(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	done := make(chan struct{})
	if _, err := s.AddOnce("poll/a/d/1", time.Now().Add(20*time.Millisecond), time.Second, TaskOptions{}, func(context.Context) error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("add once: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("one-shot did not fire")
	}
	if n := s.Pending("poll/"); n != 0 {
		t.Fatalf("pending=%d after fire", n)
	}
}

func TestRemovePrefixCancelsOnlyMatching(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	var fired atomic.Int32
	job := func(context.Context) error { fired.Add(1); return nil }
	at := time.Now().Add(200 * time.Millisecond)
	for _, name := range []string{"poll/a/d1/1", "poll/a/d1/2", "poll/b/d2/1"} {
		if _, err := s.AddOnce(name, at, time.Second, TaskOptions{}, job); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	if n := s.RemovePrefix("poll/a/"); n != 2 {
		t.Fatalf("removed=%d, want 2", n)
	}
	if n := s.Pending("poll/"); n != 1 {
		t.Fatalf("pending=%d, want 1", n)
	}
	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("fired=%d, want 1", got)
	}
}

func TestAddOnceReplacesSameName(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	var first, second atomic.Bool
	at := time.Now().Add(50 * time.Millisecond)
	_, _ = s.AddOnce("x", at, time.Second, TaskOptions{}, func(context.Context) error { first.Store(true); return nil })
	_, _ = s.AddOnce("x", at, time.Second, TaskOptions{}, func(context.Context) error { second.Store(true); return nil })
	deadline := time.Now().Add(2 * time.Second)
	for !second.Load() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if first.Load() || !second.Load() {
		t.Fatalf("first=%v second=%v", first.Load(), second.Load())
	}
}

func TestCronUsesIST(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	if _, err := s.AddDaily("stats.daily", "23:59", time.Second, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("add daily: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 1 {
		t.Fatalf("schedules=%d", len(snap.Schedules))
	}
	next := snap.Schedules[0].Next.In(clock.IST)
	if next.Hour() != 23 || next.Minute() != 59 {
		t.Fatalf("next=%s, want 23:59 IST", next)
	}
	if snap.Timezone != clock.IST.String() {
		t.Fatalf("tz=%q", snap.Timezone)
	}
}

func TestAddCronRejectsBadSpecAndUpserts(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	if _, err := s.AddCron("bad", "not a spec", time.Second, func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected parse error")
	}
	job := func(context.Context) error { return nil }
	_, _ = s.AddCron("azan.tick", "0 * * * * *", time.Second, job)
	_, _ = s.AddCron("azan.tick", "0 * * * * *", time.Second, job)
	if n := len(s.Snapshot().Schedules); n != 1 {
		t.Fatalf("schedules=%d, want 1", n)
	}
	if !s.Remove("azan.tick") || len(s.Snapshot().Schedules) != 0 {
		t.Fatalf("remove failed")
	}
}
