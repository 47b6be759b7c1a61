package admission

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Leases hands out one loop lease per match so that two processes (or a
// restarted one racing its predecessor) never reconcile the same match at
// once. With no redis configured it degrades to single-process operation
// where every acquire succeeds.
type Leases struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLeases(redisURL string) (*Leases, error) {
	if redisURL == "" {
		return &Leases{ttl: 30 * time.Second}, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Leases{rdb: rdb, ttl: 30 * time.Second}, nil
}

func (l *Leases) Close() error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}

func leaseKey(matchID int64) string {
	return "match:lease:" + strconv.FormatInt(matchID, 10)
}

// Acquire takes the lease for a match. False means another holder is live.
func (l *Leases) Acquire(ctx context.Context, matchID int64) (bool, error) {
	if l == nil || l.rdb == nil {
		return true, nil
	}
	return l.rdb.SetNX(ctx, leaseKey(matchID), time.Now().UnixNano(), l.ttl).Result()
}

// Refresh extends the lease; called from the loop's tick.
func (l *Leases) Refresh(ctx context.Context, matchID int64) error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Expire(ctx, leaseKey(matchID), l.ttl).Err()
}

// Release drops the lease once the loop has stopped.
func (l *Leases) Release(ctx context.Context, matchID int64) error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Del(ctx, leaseKey(matchID)).Err()
}
