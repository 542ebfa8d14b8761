package meter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Cache memoizes provider balance lookups with a per-entry TTL and a hard
// entry cap, so the hot path does not hit the billing provider on every
// request and the map cannot grow without bound.
type Cache struct {
	provider   Provider
	ttl        time.Duration
	maxEntries int
	nowFn      func() time.Time

	mu      sync.Mutex
	entries map[uint64]*cacheEntry
}

type cacheEntry struct {
	balances  []Balance
	fetchedAt time.Time
}

// NewCache constructs a Cache over provider. A non-positive maxEntries
// defaults to 10000 and a non-positive ttl to 3 minutes.
func NewCache(provider Provider, ttl time.Duration, maxEntries int, nowFn func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Cache{
		provider:   provider,
		ttl:        ttl,
		maxEntries: maxEntries,
		nowFn:      nowFn,
		entries:    make(map[uint64]*cacheEntry),
	}
}

// Balances returns the cached snapshot for userID, refreshing it from the
// provider when stale or missing. Provider failures are returned as-is so
// callers can fail closed.
func (c *Cache) Balances(ctx context.Context, userID uint64) ([]Balance, error) {
	if c == nil || c.provider == nil {
		return nil, fmt.Errorf("meter cache: not initialized")
	}
	now := c.nowFn()

	c.mu.Lock()
	entry, ok := c.entries[userID]
	if ok && now.Sub(entry.fetchedAt) < c.ttl {
		balances := cloneBalances(entry.balances)
		c.mu.Unlock()
		return balances, nil
	}
	c.mu.Unlock()

	fetched, errFetch := c.provider.Balances(ctx, userID)
	if errFetch != nil {
		return nil, errFetch
	}

	c.mu.Lock()
	c.entries[userID] = &cacheEntry{balances: cloneBalances(fetched), fetchedAt: now}
	c.evictLocked()
	c.mu.Unlock()
	return fetched, nil
}

// Invalidate drops the cached snapshot for userID, forcing the next lookup
// to hit the provider. Called after spend is appended to the ledger.
func (c *Cache) Invalidate(userID uint64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}

// InvalidateAll drops every cached snapshot. Called on settings reloads,
// when cached balances may reflect stale provider configuration.
func (c *Cache) InvalidateAll() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[uint64]*cacheEntry)
	c.mu.Unlock()
}

// evictLocked removes oldest entries until the cache fits maxEntries.
// Must be called with the mutex held.
func (c *Cache) evictLocked() {
	for len(c.entries) > c.maxEntries {
		var oldestKey uint64
		var oldestAt time.Time
		first := true
		for key, entry := range c.entries {
			if first || entry.fetchedAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = entry.fetchedAt
				first = false
			}
		}
		delete(c.entries, oldestKey)
	}
}

func cloneBalances(balances []Balance) []Balance {
	out := make([]Balance, len(balances))
	copy(out, balances)
	return out
}
