package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	logx "azanbot/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{"memory": NewMemory()}
	for _, driver := range []string{"file", "sqlite"} {
		st, err := Open(Config{Driver: driver, Path: filepath.Join(dir, driver, "azan.db"), BusyTimeout: time.Second}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%s): %v", driver, err)
		}
		out[driver] = st
	}
	t.Cleanup(func() {
		for _, st := range out {
			_ = st.Close()
		}
	})
	return out
}

func TestMappings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		if err := st.UpsertMapping(ctx, Mapping{SessionID: "s1", LocationID: 807, DestinationID: "-100", Label: "Kochi", Enabled: true}); err != nil {
			t.Fatalf("%s: upsert: %v", name, err)
		}
		if err := st.UpsertMapping(ctx, Mapping{SessionID: "s1", LocationID: 102, DestinationID: "-200", Label: "Kasaragod", Enabled: true}); err != nil {
			t.Fatalf("%s: upsert: %v", name, err)
		}
		if err := st.UpsertMapping(ctx, Mapping{SessionID: "s2", LocationID: 807, DestinationID: "-300", Enabled: true}); err != nil {
			t.Fatalf("%s: upsert: %v", name, err)
		}
		// Re-upsert replaces the destination for the same (session, location).
		if err := st.UpsertMapping(ctx, Mapping{SessionID: "s1", LocationID: 807, DestinationID: "-101", Label: "Kochi", Enabled: true}); err != nil {
			t.Fatalf("%s: upsert: %v", name, err)
		}
		if err := st.SetMappingEnabled(ctx, "s1", 102, false); err != nil {
			t.Fatalf("%s: disable: %v", name, err)
		}
		if err := st.SetMappingEnabled(ctx, "s1", 999, false); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: disable missing err = %v", name, err)
		}

		enabled, err := st.ListMappings(ctx, "s1", true)
		if err != nil {
			t.Fatalf("%s: list: %v", name, err)
		}
		if len(enabled) != 1 || enabled[0].DestinationID != "-101" || !enabled[0].Enabled {
			t.Fatalf("%s: enabled mappings = %+v", name, enabled)
		}
		all, err := st.ListMappings(ctx, "s1", false)
		if err != nil {
			t.Fatalf("%s: list all: %v", name, err)
		}
		if len(all) != 2 || all[0].LocationID != 102 || all[0].Enabled {
			t.Fatalf("%s: all mappings = %+v", name, all)
		}
	}
}

func TestSubscriberUpsertOrGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	warned := time.UnixMilli(time.Now().UnixMilli())
	for name, st := range openDrivers(t) {
		rec := MonitoredSubscriber{
			SubscriberID:     "u1",
			SessionID:        "s1",
			DestinationIDs:   []string{"-1", "-2"},
			DestinationNames: []string{"Kochi", "Kannur"},
			WarnedAt:         warned,
			Status:           StatusWarned,
		}
		got, created, err := st.UpsertOrGetSubscriber(ctx, rec)
		if err != nil || !created {
			t.Fatalf("%s: first upsert created=%v err=%v", name, created, err)
		}
		if !got.WarnedAt.Equal(warned) || len(got.DestinationNames) != 2 {
			t.Fatalf("%s: first upsert returned %+v", name, got)
		}

		later := rec
		later.WarnedAt = warned.Add(time.Hour)
		got, created, err = st.UpsertOrGetSubscriber(ctx, later)
		if err != nil || created {
			t.Fatalf("%s: second upsert created=%v err=%v", name, created, err)
		}
		if !got.WarnedAt.Equal(warned) {
			t.Fatalf("%s: existing record was overwritten: %v", name, got.WarnedAt)
		}

		got.Status = StatusRemoved
		if err := st.UpdateSubscriber(ctx, got); err != nil {
			t.Fatalf("%s: update: %v", name, err)
		}
		warnedList, _ := st.ListSubscribers(ctx, "s1", StatusWarned)
		removedList, _ := st.ListSubscribers(ctx, "s1", StatusRemoved)
		if len(warnedList) != 0 || len(removedList) != 1 {
			t.Fatalf("%s: warned=%d removed=%d", name, len(warnedList), len(removedList))
		}

		if err := st.DeleteSubscriber(ctx, "u1", "s1"); err != nil {
			t.Fatalf("%s: delete: %v", name, err)
		}
		if err := st.DeleteSubscriber(ctx, "u1", "s1"); err != nil {
			t.Fatalf("%s: delete twice: %v", name, err)
		}
		if err := st.UpdateSubscriber(ctx, got); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: update missing err = %v", name, err)
		}
	}
}

func TestSubscriberUpsertOrGetConcurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		var wg sync.WaitGroup
		var mu sync.Mutex
		createdCount := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, created, err := st.UpsertOrGetSubscriber(ctx, MonitoredSubscriber{SubscriberID: "u9", SessionID: "s1", WarnedAt: time.Now(), Status: StatusWarned})
				if err != nil {
					t.Errorf("%s: upsert: %v", name, err)
					return
				}
				if created {
					mu.Lock()
					createdCount++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if createdCount != 1 {
			t.Fatalf("%s: created %d times, want 1", name, createdCount)
		}
	}
}

func TestMessageStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()
	for name, st := range openDrivers(t) {
		msgs := []MessageLog{
			{SessionID: "s1", DestinationID: "-1", Kind: KindReminder, Status: MessageSent, CreatedAt: now},
			{SessionID: "s1", DestinationID: "-1", Kind: KindDigest, Status: MessageSent, CreatedAt: now},
			{SessionID: "s1", DestinationID: "-2", Kind: KindReminder, Status: MessageSent, CreatedAt: now},
			{SessionID: "s1", DestinationID: "-2", Kind: KindPoll, Status: MessageFailed, Error: "blocked", CreatedAt: now},
			{SessionID: "s1", DestinationID: "-2", Kind: KindPoll, Status: MessageSent, CreatedAt: now.Add(-48 * time.Hour)},
		}
		for _, m := range msgs {
			if err := st.AppendMessage(ctx, m); err != nil {
				t.Fatalf("%s: append: %v", name, err)
			}
		}
		stats, err := st.MessageStats(ctx, now.Add(-24*time.Hour))
		if err != nil {
			t.Fatalf("%s: stats: %v", name, err)
		}
		if stats.Total != 4 || stats.Sent != 3 || stats.Failed != 1 || stats.DeliveryRate != 75 {
			t.Fatalf("%s: stats = %+v", name, stats)
		}
	}
}

func TestVotesAndRoster(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		if err := st.PutVote(ctx, PrayerVote{SubscriberID: "u1", SessionID: "s1", Date: "2025-05-17", Prayers: []string{"fajr"}}); err != nil {
			t.Fatalf("%s: vote: %v", name, err)
		}
		if err := st.PutVote(ctx, PrayerVote{SubscriberID: "u1", SessionID: "s1", Date: "2025-05-17", Prayers: []string{"fajr", "isha"}}); err != nil {
			t.Fatalf("%s: vote: %v", name, err)
		}
		votes, err := st.ListVotes(ctx, "s1", "2025-05-17")
		if err != nil || len(votes) != 1 || len(votes[0].Prayers) != 2 {
			t.Fatalf("%s: votes = %+v err=%v", name, votes, err)
		}

		if err := st.AddRosterMembers(ctx, "s1", "-1", []string{"u2", "u1", "u2"}); err != nil {
			t.Fatalf("%s: roster add: %v", name, err)
		}
		if err := st.RemoveRosterMembers(ctx, "s1", "-1", []string{"u2"}); err != nil {
			t.Fatalf("%s: roster remove: %v", name, err)
		}
		members, err := st.ListRoster(ctx, "s1", "-1")
		if err != nil || len(members) != 1 || members[0] != "u1" {
			t.Fatalf("%s: roster = %v err=%v", name, members, err)
		}
		empty, err := st.ListRoster(ctx, "s1", "-404")
		if err != nil || len(empty) != 0 {
			t.Fatalf("%s: empty roster = %v err=%v", name, empty, err)
		}
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "azan.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = st.UpsertMapping(ctx, Mapping{SessionID: "s1", LocationID: 807, DestinationID: "-1", Enabled: true})
	_, _, _ = st.UpsertOrGetSubscriber(ctx, MonitoredSubscriber{SubscriberID: "u1", SessionID: "s1", Status: StatusWarned, WarnedAt: time.Now()})
	_ = st.AppendMessage(ctx, MessageLog{SessionID: "s1", DestinationID: "-1", Kind: KindReminder, Status: MessageSent})
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	maps, _ := st.ListMappings(ctx, "s1", true)
	subs, _ := st.ListSubscribers(ctx, "s1", StatusWarned)
	stats, _ := st.MessageStats(ctx, time.Time{})
	if len(maps) != 1 || len(subs) != 1 || stats.Total != 1 {
		t.Fatalf("after reopen: maps=%d subs=%d messages=%d", len(maps), len(subs), stats.Total)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "none"}, logx.Nop()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("none driver err = %v", err)
	}
}
