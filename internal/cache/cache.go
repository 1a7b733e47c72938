package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const defaultLocalTTL = 5 * time.Minute

// New builds the cache the configuration asks for: the in-process LRU
// for the Community tier, Redis for Pro, or the two-phase combination
// when two-phase mode is enabled.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache layers the in-process LRU in front of Redis. Reads
// settle in the local layer so the scoring hot path stays off the
// network; Redis keeps nodes consistent and owns the submission
// counters.
type TwoPhaseCache struct {
	local    *LRUCache
	remote   *RedisCache
	localTTL time.Duration
}

// NewTwoPhaseCache builds the layered cache from one config.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}

	localTTL := cfg.LocalTTL
	if localTTL == 0 {
		localTTL = defaultLocalTTL
	}

	return &TwoPhaseCache{
		local:    NewLRUCache(cfg.LocalMaxSize),
		remote:   remote,
		localTTL: localTTL,
	}, nil
}

// localCap returns the TTL for the local layer, never longer than the
// entry's own TTL.
func (c *TwoPhaseCache) localCap(ttl time.Duration) time.Duration {
	if ttl < c.localTTL {
		return ttl
	}
	return c.localTTL
}

// Get reads the local layer first and falls through to Redis,
// back-filling the local layer on a remote hit.
func (c *TwoPhaseCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, tenantID, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.remote.Get(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, tenantID, key, val, c.localTTL)
	}
	return val, nil
}

// Set writes through both layers.
func (c *TwoPhaseCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, tenantID, key, value, c.localCap(ttl)); err != nil {
		return err
	}
	return c.remote.Set(ctx, tenantID, key, value, ttl)
}

// Delete drops the key from both layers.
func (c *TwoPhaseCache) Delete(ctx context.Context, tenantID string, key string) error {
	if err := c.local.Delete(ctx, tenantID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, tenantID, key)
}

// GetProfile reads the account snapshot local-first, back-filling the
// local layer on a remote hit.
func (c *TwoPhaseCache) GetProfile(ctx context.Context, tenantID string, accountNumber string) (*domain.ProfileSnapshot, error) {
	snap, err := c.local.GetProfile(ctx, tenantID, accountNumber)
	if err != nil || snap != nil {
		return snap, err
	}

	snap, err = c.remote.GetProfile(ctx, tenantID, accountNumber)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		_ = c.local.SetProfile(ctx, tenantID, accountNumber, snap, c.localTTL)
	}
	return snap, nil
}

// SetProfile writes the account snapshot through both layers.
func (c *TwoPhaseCache) SetProfile(ctx context.Context, tenantID string, accountNumber string, snap *domain.ProfileSnapshot, ttl time.Duration) error {
	if err := c.local.SetProfile(ctx, tenantID, accountNumber, snap, c.localCap(ttl)); err != nil {
		return err
	}
	return c.remote.SetProfile(ctx, tenantID, accountNumber, snap, ttl)
}

// IncrementCounter always goes to Redis. Submission counters have to
// agree across nodes, so the local layer never serves them.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, tenantID, key, window)
}

// Ping checks both layers.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("local cache ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases both layers.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats reports the local layer's entry count and capacity.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
