package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisKeyPrefix namespaces limiter keys.
const DefaultRedisKeyPrefix = "palmyra:ratelimit:"

// RedisLimiter shares fixed-window counters between API instances.
type RedisLimiter struct {
	client redis.Cmdable
	window time.Duration
	limit  int
	prefix string
}

// NewRedisLimiter builds a RedisLimiter. Zero values select the defaults.
func NewRedisLimiter(client redis.Cmdable, windowSize time.Duration, limit int) *RedisLimiter {
	if client == nil {
		panic("orchestrator: redis client is required")
	}
	if windowSize <= 0 {
		windowSize = DefaultRateWindow
	}
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	return &RedisLimiter{client: client, window: windowSize, limit: limit, prefix: DefaultRedisKeyPrefix}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int) (Decision, error) {
	if limit <= 0 {
		limit = l.limit
	}
	redisKey := l.prefix + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("incr %s: %w", redisKey, err)
	}
	if count == 1 {
		if err := l.client.PExpire(ctx, redisKey, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("pexpire %s: %w", redisKey, err)
		}
	}

	if count <= int64(limit) {
		return Decision{Allowed: true, Limit: limit, Remaining: limit - int(count)}, nil
	}

	ttl, err := l.client.PTTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		// A key without expiry would block forever; restart its window.
		_ = l.client.PExpire(ctx, redisKey, l.window).Err()
		ttl = l.window
	}
	return Decision{Limit: limit, RetryAfter: ttl}, nil
}
