// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package cache

import (
	"sync"
	"time"
)

// entry is a cached value with its expiry deadline
type entry[V any] struct {
	value     V
	storedAt  time.Time
	expiresAt time.Time
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Cache is a generic in-memory TTL cache. Expired entries are swept lazily
// on writes; there is no background goroutine to manage or close.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]*entry[V]
	ttl     time.Duration
}

// New creates a cache whose entries expire ttl after being set
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]*entry[V]),
		ttl:     ttl,
	}
}

// Get returns the live value for key, if any
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || e.expired(time.Now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// GetWithAge returns the live value for key together with how long ago it
// was stored. Age is zero when the key is absent or expired.
func (c *Cache[K, V]) GetWithAge(key K) (V, time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	e, ok := c.entries[key]
	if !ok || e.expired(now) {
		var zero V
		return zero, 0, false
	}
	return e.value, now.Sub(e.storedAt), true
}

// Set stores value under key with the cache's TTL
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.sweep(now)
	c.entries[key] = &entry[V]{
		value:     value,
		storedAt:  now,
		expiresAt: now.Add(c.ttl),
	}
}

// Delete removes key from the cache
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Clear removes all entries
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*entry[V])
}

// Len returns the number of live entries
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	n := 0
	for _, e := range c.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// sweep drops expired entries; callers hold the write lock
func (c *Cache[K, V]) sweep(now time.Time) {
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
		}
	}
}
