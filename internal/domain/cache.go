package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetProfile retrieves a cached profile snapshot for an account.
	GetProfile(ctx context.Context, tenantID string, accountNumber string) (*ProfileSnapshot, error)

	// SetProfile caches a profile snapshot for scoring requests.
	SetProfile(ctx context.Context, tenantID string, accountNumber string, snap *ProfileSnapshot, ttl time.Duration) error

	// IncrementCounter atomically increments a windowed counter and
	// returns the new value. Used to track per-account submission
	// counts; surfaced in response metadata, never scored.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// ProfileCacheKey is the cache key for an account's profile snapshot.
// Implementations and callers share it so invalidation can go through
// the generic Delete.
func ProfileCacheKey(accountNumber string) string {
	return "profile:" + accountNumber
}

// ProfileSnapshot holds the cached profile and history window for an
// account, so repeated submissions skip the repository round trip.
type ProfileSnapshot struct {
	Profile *AccountProfile `json:"profile,omitempty"`
	History []*Transaction  `json:"history,omitempty"`

	// Found distinguishes a cached "no profile exists" answer from a
	// cache miss.
	Found bool `json:"found"`
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
