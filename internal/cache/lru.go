// Package cache keeps account profile snapshots and velocity counters
// close to the scoring path. Community tier runs entirely on the
// in-process LRU; Pro tier layers Redis behind it so several scoring
// nodes share one view of an account.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var errTenantRequired = errors.New("cache: tenant id is required")

const defaultMaxEntries = 10000

// tenantKey namespaces an entry per tenant. Every read and write goes
// through it so one tenant's profiles never leak into another's.
func tenantKey(tenantID, key string) string {
	return tenantID + ":" + key
}

// LRUCache is an in-process cache with per-entry expiry and
// least-recently-used eviction. It backs the Community tier and serves
// as the local layer of TwoPhaseCache.
type LRUCache struct {
	mu         sync.RWMutex
	maxEntries int
	index      map[string]*list.Element
	recency    *list.List
	windows    map[string]*countWindow
}

// lruItem is the recency-list payload. The key is carried so eviction
// can clear the index without a reverse lookup.
type lruItem struct {
	key       string
	payload   []byte
	expiresAt time.Time
}

func (it *lruItem) expired(now time.Time) bool {
	return now.After(it.expiresAt)
}

// countWindow tracks one account's submissions inside a rolling window.
type countWindow struct {
	count    int64
	resetsAt time.Time
}

// NewLRUCache creates an in-process cache holding at most maxEntries
// values.
func NewLRUCache(maxEntries int) *LRUCache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &LRUCache{
		maxEntries: maxEntries,
		index:      make(map[string]*list.Element),
		recency:    list.New(),
		windows:    make(map[string]*countWindow),
	}
}

// Get returns the cached value, or nil when the key is absent or
// expired.
func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, errTenantRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[tenantKey(tenantID, key)]
	if !ok {
		return nil, nil
	}

	item := elem.Value.(*lruItem)
	if item.expired(time.Now()) {
		c.evict(elem)
		return nil, nil
	}

	c.recency.MoveToFront(elem)
	return item.payload, nil
}

// Set stores a value with the given TTL, evicting the coldest entries
// when the cache is full.
func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return errTenantRequired
	}

	full := tenantKey(tenantID, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[full]; ok {
		item := elem.Value.(*lruItem)
		item.payload = value
		item.expiresAt = time.Now().Add(ttl)
		c.recency.MoveToFront(elem)
		return nil
	}

	c.index[full] = c.recency.PushFront(&lruItem{
		key:       full,
		payload:   value,
		expiresAt: time.Now().Add(ttl),
	})

	for c.recency.Len() > c.maxEntries {
		if oldest := c.recency.Back(); oldest != nil {
			c.evict(oldest)
		}
	}
	return nil
}

// Delete drops a key. Missing keys are not an error.
func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return errTenantRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[tenantKey(tenantID, key)]; ok {
		c.evict(elem)
	}
	return nil
}

// GetProfile returns the cached profile snapshot for an account, or
// nil on a miss.
func (c *LRUCache) GetProfile(ctx context.Context, tenantID string, accountNumber string) (*domain.ProfileSnapshot, error) {
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
func (c *LRUCache) SetProfile(ctx context.Context, tenantID string, accountNumber string, snap *domain.ProfileSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.Set(ctx, tenantID, domain.ProfileCacheKey(accountNumber), data, ttl)
}

// IncrementCounter bumps a windowed counter and returns the new count.
// An expired window restarts at 1.
func (c *LRUCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, errTenantRequired
	}

	full := tenantKey(tenantID, "counter:"+key)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	w, ok := c.windows[full]
	if !ok || now.After(w.resetsAt) {
		c.windows[full] = &countWindow{count: 1, resetsAt: now.Add(window)}
		return 1, nil
	}

	w.count++
	return w.count, nil
}

// Ping always succeeds for the in-process cache.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops all cached state.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*list.Element)
	c.recency = list.New()
	c.windows = make(map[string]*countWindow)
	return nil
}

// Stats reports the current entry count and the configured capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recency.Len(), c.maxEntries
}

// evict removes an element from both the recency list and the index.
// Caller holds the lock.
func (c *LRUCache) evict(elem *list.Element) {
	c.recency.Remove(elem)
	delete(c.index, elem.Value.(*lruItem).key)
}
