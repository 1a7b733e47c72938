package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	// redisNamespace prefixes every key so a shared Redis instance can
	// host other services alongside the scoring engine.
	redisNamespace = "kestrel"

	connectTimeout = 5 * time.Second
)

// incrWindowScript increments a counter and arms its expiry in one
// atomic step, so the window cannot be left without a TTL when two
// scoring nodes race on the first submission.
var incrWindowScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// RedisCache shares profile snapshots and submission counters across
// scoring nodes. Pro tier uses it directly or as the remote layer of
// TwoPhaseCache.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis using the addr, password and DB from
// cfg and verifies the connection before returning.
func NewRedisCache(cfg domain.CacheConfig) (*RedisCache, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) key(tenantID, key string) string {
	return redisNamespace + ":" + tenantKey(tenantID, key)
}

// Get returns the cached value, or nil when the key is absent.
func (c *RedisCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, errTenantRequired
	}

	val, err := c.client.Get(ctx, c.key(tenantID, key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value with the given TTL.
func (c *RedisCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return errTenantRequired
	}
	return c.client.Set(ctx, c.key(tenantID, key), value, ttl).Err()
}

// Delete drops a key. Missing keys are not an error.
func (c *RedisCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return errTenantRequired
	}
	return c.client.Del(ctx, c.key(tenantID, key)).Err()
}

// GetProfile returns the cached profile snapshot for an account, or
// nil on a miss.
func (c *RedisCache) GetProfile(ctx context.Context, tenantID string, accountNumber string) (*domain.ProfileSnapshot, error) {
	data, err := c.Get(ctx, tenantID, domain.ProfileCacheKey(accountNumber))
	if err != nil || data == nil {
		return nil, err
	}

	var snap domain.ProfileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SetProfile caches an account's profile snapshot.
func (c *RedisCache) SetProfile(ctx context.Context, tenantID string, accountNumber string, snap *domain.ProfileSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.Set(ctx, tenantID, domain.ProfileCacheKey(accountNumber), data, ttl)
}

// IncrementCounter bumps a windowed counter and returns the new count.
func (c *RedisCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, errTenantRequired
	}

	full := c.key(tenantID, "counter:"+key)
	return incrWindowScript.Run(ctx, c.client, []string{full}, window.Milliseconds()).Int64()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
