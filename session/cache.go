package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"ory-auth-gate/auth"
)

// DefaultCacheTTL bounds how stale a cached identity may get.
const DefaultCacheTTL = 30 * time.Second

// Entry is one cached session lookup. Indeterminate marks a session whose
// sign-out failed: it must not be trusted as signed in or as signed out.
type Entry struct {
	Identity      auth.Identity `json:"identity"`
	Indeterminate bool          `json:"indeterminate,omitempty"`
}

// Cache stores session lookups keyed by CacheKey(token).
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Set overwrites. Used by the mutating operations.
	Set(ctx context.Context, key string, e Entry) error
	// Add stores e only if key is absent and reports whether it did. Used to
	// fill the cache from provider reads without clobbering a newer write.
	Add(ctx context.Context, key string, e Entry) (bool, error)
	Delete(ctx context.Context, key string) error
}

// CacheKey derives the cache key for a session token. Raw tokens are never
// stored.
func CacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryCache is a process-local Cache with a fixed TTL.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache returns a MemoryCache whose entries live for ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup(key)
	return e, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{entry: e, expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Add(_ context.Context, key string, e Entry) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lookup(key); ok {
		return false, nil
	}
	c.entries[key] = memoryEntry{entry: e, expiresAt: c.now().Add(c.ttl)}
	return true, nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

// lookup must be called with mu held. Expired entries are evicted on read.
func (c *MemoryCache) lookup(key string) (Entry, bool) {
	me, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	if !c.now().Before(me.expiresAt) {
		delete(c.entries, key)
		return Entry{}, false
	}
	return me.entry, true
}
