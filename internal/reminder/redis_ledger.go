package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLedger keeps day markers in Redis so a restart or a second replica
// does not resend. Keys carry the date and expire on their own.
type RedisLedger struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration

	mu   sync.Mutex
	date string
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisLedger connects and pings.
func NewRedisLedger(ctx context.Context, opt RedisOptions) (*RedisLedger, error) {
	rdb := redis.NewClient(&redis.Options{Addr: opt.Addr, Password: opt.Password, DB: opt.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ledger: ping %s: %w", opt.Addr, err)
	}
	return NewRedisLedgerFromClient(rdb, opt.Prefix), nil
}

func NewRedisLedgerFromClient(rdb redis.UniversalClient, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = "azanbot:day:"
	}
	return &RedisLedger{rdb: rdb, prefix: prefix, ttl: 48 * time.Hour}
}

func (l *RedisLedger) Rollover(_ context.Context, date string) error {
	l.mu.Lock()
	l.date = date
	l.mu.Unlock()
	return nil
}

func (l *RedisLedger) Mark(ctx context.Context, ns, key string) (bool, error) {
	l.mu.Lock()
	date := l.date
	l.mu.Unlock()
	ok, err := l.rdb.SetNX(ctx, l.prefix+date+":"+ns+":"+key, 1, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis ledger: mark %s: %w", ns, err)
	}
	return ok, nil
}

func (l *RedisLedger) Close() error { return l.rdb.Close() }
