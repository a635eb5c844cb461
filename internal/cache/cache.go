// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache provides a TTL cache behind a swappable storage backend.
//
// The catalog layer caches per-gateway model listings so the UI does not
// refetch pricing on every render. The coordination core must not assume
// any particular persistence medium, so expiry logic lives in Cache while
// the Backend interface hides where entries actually live: in memory for
// tests and short-lived processes, on disk for anything that should survive
// a restart.
package cache

import (
	"sync"
	"time"
)

// =============================================================================
// ENTRY AND BACKEND
// =============================================================================

// Entry is one stored value with its expiry deadline.
type Entry struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its deadline at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Backend stores entries by key. Implementations must be safe for
// concurrent use. Backends store blindly; expiry is the Cache's job.
type Backend interface {
	Read(key string) (Entry, bool, error)
	Write(key string, e Entry) error
	Delete(key string) error
	Keys() ([]string, error)
}

// =============================================================================
// TTL CACHE
// =============================================================================

// Cache applies TTL semantics over a Backend.
type Cache struct {
	backend Backend
	ttl     time.Duration

	// now is swapped in tests for deterministic expiry.
	now func() time.Time
}

// New creates a cache with a default TTL for Set.
func New(backend Backend, ttl time.Duration) *Cache {
	return &Cache{
		backend: backend,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the value for key, treating expired entries as misses.
// An expired entry is deleted on the way out. Backend read errors are
// reported as misses: a broken cache must degrade to refetching, never
// crash the caller.
func (c *Cache) Get(key string) ([]byte, bool) {
	e, ok, err := c.backend.Read(key)
	if err != nil || !ok {
		return nil, false
	}
	if e.Expired(c.now()) {
		_ = c.backend.Delete(key)
		return nil, false
	}
	return e.Value, true
}

// Set stores value under key with the cache's default TTL.
func (c *Cache) Set(key string, value []byte) error {
	return c.SetTTL(key, value, c.ttl)
}

// SetTTL stores value with an explicit TTL. A non-positive ttl stores the
// entry without expiry.
func (c *Cache) SetTTL(key string, value []byte, ttl time.Duration) error {
	e := Entry{Value: value}
	if ttl > 0 {
		e.ExpiresAt = c.now().Add(ttl)
	}
	return c.backend.Write(key, e)
}

// Delete removes key.
func (c *Cache) Delete(key string) error {
	return c.backend.Delete(key)
}

// Purge removes every expired entry and returns how many were dropped.
func (c *Cache) Purge() (int, error) {
	keys, err := c.backend.Keys()
	if err != nil {
		return 0, err
	}
	now := c.now()
	dropped := 0
	for _, key := range keys {
		e, ok, err := c.backend.Read(key)
		if err != nil || !ok {
			continue
		}
		if e.Expired(now) {
			if err := c.backend.Delete(key); err == nil {
				dropped++
			}
		}
	}
	return dropped, nil
}

// =============================================================================
// MEMORY BACKEND
// =============================================================================

// MemoryBackend keeps entries in a process-local map.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]Entry)}
}

// Read implements Backend.
func (b *MemoryBackend) Read(key string) (Entry, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[key]
	return e, ok, nil
}

// Write implements Backend.
func (b *MemoryBackend) Write(key string, e Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = e
	return nil
}

// Delete implements Backend.
func (b *MemoryBackend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

// Keys implements Backend.
func (b *MemoryBackend) Keys() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	return keys, nil
}
