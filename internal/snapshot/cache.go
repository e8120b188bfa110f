package snapshot

import (
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

type cacheEntry struct {
	snapshot  *Snapshot
	expiresAt time.Time
}

// Cache is a read-mostly TTL cache for built snapshots. Writes happen only at
// build completion (single writer); reads are safe from any goroutine.
type Cache struct {
	entries *xsync.Map[string, cacheEntry]
}

// NewCache constructs an empty snapshot cache.
func NewCache() *Cache {
	return &Cache{entries: xsync.NewMap[string, cacheEntry]()}
}

// Get returns the cached snapshot for key if present and not expired.
func (c *Cache) Get(key string) (*Snapshot, bool) {
	entry, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.entries.Delete(key)
		return nil, false
	}
	return entry.snapshot, true
}

// Put stores a snapshot under key with the given time-to-live.
func (c *Cache) Put(key string, snap *Snapshot, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.entries.Store(key, cacheEntry{snapshot: snap, expiresAt: time.Now().Add(ttl)})
}

// Invalidate drops a cached snapshot.
func (c *Cache) Invalidate(key string) {
	c.entries.Delete(key)
}
