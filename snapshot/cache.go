// CLAUDE:SUMMARY Bounded LRU snapshot cache keyed by fragment-stripped URL, with hit/miss counters.
package snapshot

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a bounded LRU of snapshots keyed by normalised URL. A second
// capture of the same URL replaces the first. Reads and writes are safe
// from any goroutine.
type Cache struct {
	lru    *lru.Cache[string, *Snapshot]
	logger *slog.Logger

	hits      atomic.Uint64
	misses    atomic.Uint64
	stores    atomic.Uint64
	evictions atomic.Uint64
	rejected  atomic.Uint64
}

// CacheOption customises a Cache.
type CacheOption func(*Cache)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) CacheOption {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCache creates a cache holding at most maxEntries snapshots.
func NewCache(maxEntries int, opts ...CacheOption) (*Cache, error) {
	if maxEntries < 1 {
		return nil, fmt.Errorf("snapshot: cache size %d, need at least 1", maxEntries)
	}
	inner, err := lru.New[string, *Snapshot](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	c := &Cache{lru: inner, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Put stores a snapshot under its URL. Snapshots marked non-cacheable
// are refused; any stale entry for that URL is dropped so a later Get
// cannot resurrect outdated markup.
func (c *Cache) Put(s *Snapshot) bool {
	if s == nil {
		return false
	}
	if !s.Cacheable {
		c.rejected.Add(1)
		c.lru.Remove(s.URL)
		c.logger.Debug("snapshot: not cacheable", "url", s.URL)
		return false
	}
	c.stores.Add(1)
	if evicted := c.lru.Add(s.URL, s); evicted {
		c.evictions.Add(1)
		c.logger.Debug("snapshot: evicted oldest", "stored", s.URL)
	}
	return true
}

// Get returns the snapshot for a URL. The key is normalised with Key,
// so callers can pass raw URLs with fragments.
func (c *Cache) Get(rawURL string) (*Snapshot, bool) {
	s, ok := c.lru.Get(Key(rawURL))
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return s, ok
}

// Contains reports whether a snapshot exists without refreshing its
// LRU position or touching the counters.
func (c *Cache) Contains(rawURL string) bool {
	return c.lru.Contains(Key(rawURL))
}

// Delete drops the snapshot for a URL if present.
func (c *Cache) Delete(rawURL string) {
	c.lru.Remove(Key(rawURL))
}

// Purge empties the cache.
func (c *Cache) Purge() {
	c.lru.Purge()
}

// Len returns the number of cached snapshots.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// CacheStats are lifetime counters, safe to read concurrently.
type CacheStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Stores    uint64 `json:"stores"`
	Evictions uint64 `json:"evictions"`
	Rejected  uint64 `json:"rejected"`
	Entries   int    `json:"entries"`
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Stores:    c.stores.Load(),
		Evictions: c.evictions.Load(),
		Rejected:  c.rejected.Load(),
		Entries:   c.lru.Len(),
	}
}
