// File: internal/cache/cache.go
// Description: A small TTL cache keyed by content hash. Entries are evicted
// lazily on lookup; no background janitor is required because both consumers
// re-key on every call anyway.

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json sorts map keys on marshal so hash keys are stable across calls.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// entry pairs a cached value with its creation time for TTL eviction.
type entry[V any] struct {
	value   V
	created time.Time
}

// TTL is a concurrency-safe cache whose entries expire a fixed duration
// after creation.
type TTL[V any] struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry[V]
}

// NewTTL creates a cache with the given entry lifetime.
func NewTTL[V any](ttl time.Duration) *TTL[V] {
	return &TTL[V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry[V]),
	}
}

// SetClock overrides the cache's time source. Tests use this to step through
// TTL expiry deterministically.
func (c *TTL[V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the cached value for key if it exists and has not expired.
// Expired entries are evicted on the spot.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().Sub(e.created) > c.ttl {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores a value under key, stamping it with the current time.
func (c *TTL[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, created: c.now()}
}

// Clear drops every entry.
func (c *TTL[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Len returns the number of entries, expired or not.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Key produces a stable content hash for any JSON-serializable parts. It is
// how callers derive cache keys from (input, user) tuples.
func Key(parts ...interface{}) string {
	h := sha256.New()
	for _, part := range parts {
		raw, err := json.Marshal(part)
		if err != nil {
			// Unserializable parts still need a stable representation.
			raw = []byte("?")
		}
		h.Write(raw)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
