// Package redislimit implements a per-user fixed-window send limit in Redis,
// shared by every service instance.
package redislimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/roomvault/internal/domain/port/driven"
)

const keyPrefix = "rl:send:"

// Compile-time interface satisfaction check.
var _ driven.RateLimiter = (*Limiter)(nil)

// Limiter allows at most limit sends per user in each window.
type Limiter struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewClient creates a Redis client for addr and verifies it answers.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// NewLimiter creates a Limiter on rdb.
func NewLimiter(rdb *redis.Client, limit int64, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, limit: limit, window: window, now: time.Now}
}

// Allow counts one send for username and reports whether it is within the
// limit for the current window.
func (l *Limiter) Allow(ctx context.Context, username string) (bool, error) {
	k := l.key(username)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit %q: %w", username, err)
	}
	return incr.Val() <= l.limit, nil
}

// key names the counter for username in the current window.
func (l *Limiter) key(username string) string {
	window := l.now().UnixNano() / int64(l.window)
	return keyPrefix + username + ":" + strconv.FormatInt(window, 10)
}
