// Package ratelimit implements a sliding-window rate limiter for
// user-scoped, bursty operations such as simulation runs. It prefers a
// Redis-backed sorted set so the window is shared across every process
// behind a load balancer, and falls back to an in-process window when no
// Redis client is configured.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Limiter enforces "at most limit calls per key within window".
type Limiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	prefix string
	log    zerolog.Logger

	mu     sync.Mutex
	local  map[string][]time.Time
}

// New constructs a Limiter. redisClient may be nil, in which case the
// limiter keeps its sliding window in process memory.
func New(redisClient *redis.Client, limit int, window time.Duration, log zerolog.Logger) *Limiter {
	return &Limiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
		prefix: "ratelimit:",
		log:    log.With().Str("component", "ratelimit").Logger(),
		local:  make(map[string][]time.Time),
	}
}

// Allow reports whether key may proceed now, recording the call if so.
// now is passed in rather than read from the system clock so callers
// using internal/clock.Clock stay mockable in tests.
func (l *Limiter) Allow(ctx context.Context, key string, now time.Time) (bool, error) {
	if l.redis != nil {
		allowed, err := l.allowRedis(ctx, key, now)
		if err == nil {
			return allowed, nil
		}
		l.log.Warn().Err(err).Str("key", key).Msg("redis rate limit check failed, falling back to in-process window")
	}
	return l.allowLocal(key, now), nil
}

func (l *Limiter) allowRedis(ctx context.Context, key string, now time.Time) (bool, error) {
	redisKey := l.prefix + key
	cutoff := now.Add(-l.window).UnixNano()

	pipe := l.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(cutoff, 10))
	card := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	if int(card.Val()) >= l.limit {
		return false, nil
	}

	member := strconv.FormatInt(now.UnixNano(), 10)
	if err := l.redis.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member}).Err(); err != nil {
		return false, err
	}
	l.redis.Expire(ctx, redisKey, l.window)
	return true, nil
}

func (l *Limiter) allowLocal(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	calls := l.local[key]
	kept := calls[:0]
	for _, t := range calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.limit {
		l.local[key] = kept
		return false
	}

	l.local[key] = append(kept, now)
	return true
}
