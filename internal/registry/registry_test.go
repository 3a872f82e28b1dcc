package registry

import (
	"context"
	"testing"

	"azanbot/internal/config"
	"azanbot/internal/prayer"
	"azanbot/internal/storage"
	"azanbot/pkg/logx"
)

type stubLocator map[int]prayer.Location

func (s stubLocator) Lookup(id int) (prayer.Location, bool) {
	l, ok := s[id]
	return l, ok
}

func TestSeedAndFind(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := New(storage.NewMemory(), nil, logx.Nop())
	off := false
	n := r.Seed(ctx, []config.DestinationSeed{
		{Session: "s1", LocationID: 707, DestinationID: "-1"},
		{Session: "s1", LocationID: 102, DestinationID: "-2", Enabled: &off},
		{Session: "s2", LocationID: 807, DestinationID: "-3"},
		{Session: "s1", LocationID: 0, DestinationID: "-4"},
	})
	if n != 3 {
		t.Fatalf("seeded=%d, want 3", n)
	}
	ms, err := r.FindEnabledMappings(ctx, "s1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(ms) != 1 || ms[0].LocationID != 707 {
		t.Fatalf("mappings=%+v", ms)
	}
	if err := r.SetEnabled(ctx, "s1", 102, true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	ms, _ = r.FindEnabledMappings(ctx, "s1")
	if len(ms) != 2 || ms[0].LocationID != 102 {
		t.Fatalf("after enable=%+v", ms)
	}
}

func TestSeedNeverDeletes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := New(storage.NewMemory(), nil, logx.Nop())
	_ = r.Upsert(ctx, DestinationMapping{SessionID: "s1", LocationID: 303, DestinationID: "-9", Enabled: true})
	r.Seed(ctx, nil)
	ms, _ := r.FindEnabledMappings(ctx, "s1")
	if len(ms) != 1 {
		t.Fatalf("mapping removed by empty seed: %+v", ms)
	}
}

func TestDisplayName(t *testing.T) {
	t.Parallel()
	r := New(storage.NewMemory(), stubLocator{707: {ID: 707, Name: "Thrissur"}}, logx.Nop())
	cases := []struct {
		m    DestinationMapping
		want string
	}{
		{DestinationMapping{LocationID: 707, Label: "Thrissur Masjid"}, "Thrissur Masjid"},
		{DestinationMapping{LocationID: 707}, "Thrissur"},
		{DestinationMapping{LocationID: 5}, "location 5"},
	}
	for _, tc := range cases {
		if got := r.DisplayName(tc.m); got != tc.want {
			t.Fatalf("DisplayName(%+v)=%q, want %q", tc.m, got, tc.want)
		}
	}
}
