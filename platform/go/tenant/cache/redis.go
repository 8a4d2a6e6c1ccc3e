package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
)

// DefaultRedisPrefix namespaces tenant snapshots in a shared Redis.
const DefaultRedisPrefix = "palmyra:"

// Redis stores tenant snapshots as JSON with a Redis-side expiry, so every
// API instance shares one cache. Redis failures degrade to a miss and are logged.
type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

var _ tenant.Cache = (*Redis)(nil)

// NewRedis builds a Redis cache on client.
func NewRedis(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *Redis {
	if client == nil {
		panic("tenant cache: redis client is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, ttl: ttl, prefix: DefaultRedisPrefix, logger: logger}
}

// Get implements tenant.Cache.
func (r *Redis) Get(ctx context.Context, key string) (tenant.Tenant, bool) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("tenant cache get", zap.String("key", key), zap.Error(err))
		}
		return tenant.Tenant{}, false
	}

	var t tenant.Tenant
	if err := json.Unmarshal(raw, &t); err != nil {
		r.logger.Warn("tenant cache decode", zap.String("key", key), zap.Error(err))
		return tenant.Tenant{}, false
	}
	return t, true
}

// Set implements tenant.Cache.
func (r *Redis) Set(ctx context.Context, key string, t tenant.Tenant) {
	raw, err := json.Marshal(t)
	if err != nil {
		r.logger.Warn("tenant cache encode", zap.String("key", key), zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, r.ttl).Err(); err != nil {
		r.logger.Warn("tenant cache set", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate implements tenant.Cache.
func (r *Redis) Invalidate(ctx context.Context, key string) {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		r.logger.Warn("tenant cache invalidate", zap.String("key", key), zap.Error(err))
	}
}
