package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisLedger(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewRedisLedgerFromClient(rdb, "")
	defer l.Close()
	ctx := context.Background()

	if err := l.Rollover(ctx, "2026-03-15"); err != nil {
		t.Fatalf("rollover: %v", err)
	}
	ok, err := l.Mark(ctx, NSFollowUp, Key("s1", "-100", "fajr", "03-15"))
	if err != nil || !ok {
		t.Fatalf("first mark = %v, %v", ok, err)
	}
	ok, err = l.Mark(ctx, NSFollowUp, Key("s1", "-100", "fajr", "03-15"))
	if err != nil || ok {
		t.Fatalf("second mark = %v, %v", ok, err)
	}
	if !mr.Exists("azanbot:day:2026-03-15:followup:s1|-100|fajr|03-15") {
		t.Fatalf("key not stored; keys = %v", mr.Keys())
	}
	if ttl := mr.TTL("azanbot:day:2026-03-15:followup:s1|-100|fajr|03-15"); ttl <= 0 || ttl > 48*time.Hour {
		t.Fatalf("ttl = %s", ttl)
	}

	_ = l.Rollover(ctx, "2026-03-16")
	ok, err = l.Mark(ctx, NSFollowUp, Key("s1", "-100", "fajr", "03-15"))
	if err != nil || !ok {
		t.Fatalf("mark on new day = %v, %v", ok, err)
	}
}

func TestRedisLedgerSharedAcrossInstances(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	ctx := context.Background()
	a, err := NewRedisLedger(ctx, RedisOptions{Addr: mr.Addr(), Prefix: "t:"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer a.Close()
	b, err := NewRedisLedger(ctx, RedisOptions{Addr: mr.Addr(), Prefix: "t:"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer b.Close()
	_ = a.Rollover(ctx, "2026-03-15")
	_ = b.Rollover(ctx, "2026-03-15")

	if ok, _ := a.Mark(ctx, NSDigest, "k"); !ok {
		t.Fatalf("first replica should win")
	}
	if ok, _ := b.Mark(ctx, NSDigest, "k"); ok {
		t.Fatalf("second replica must see the marker")
	}
}

func TestRedisLedgerPingFails(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedisLedger(ctx, RedisOptions{Addr: addr}); err == nil {
		t.Fatalf("expected ping error")
	}
}
