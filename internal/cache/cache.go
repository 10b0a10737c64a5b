// Package cache provides a bounded in-memory cache. Entries expire after a
// TTL; when the entry count exceeds the limit the oldest third is evicted.
package cache

import (
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultLimit is the entry limit used when none is configured.
const DefaultLimit = 10000

type entry struct {
	value any
	seq   uint64
}

// Bounded is a TTL cache with an entry limit. It is safe for concurrent use.
type Bounded struct {
	mu    sync.Mutex
	items *gocache.Cache
	limit int
	seq   uint64
}

// New creates a Bounded cache. A zero ttl means entries never expire; a
// non-positive limit uses DefaultLimit.
func New(limit int, ttl time.Duration) *Bounded {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	cleanup := ttl
	if cleanup == gocache.NoExpiration {
		cleanup = 0
	}
	return &Bounded{
		items: gocache.New(ttl, cleanup),
		limit: limit,
	}
}

// Get returns the cached value for key.
func (b *Bounded) Get(key string) (any, bool) {
	v, ok := b.items.Get(key)
	if !ok {
		return nil, false
	}
	return v.(entry).value, true
}

// Set stores value under key and evicts the oldest third of the entries if
// the limit is exceeded.
func (b *Bounded) Set(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	b.items.SetDefault(key, entry{value: value, seq: b.seq})
	if b.items.ItemCount() > b.limit {
		b.evictOldestThird()
	}
}

// Delete removes key.
func (b *Bounded) Delete(key string) {
	b.items.Delete(key)
}

// Len returns the number of cached entries, including expired entries not
// yet cleaned up.
func (b *Bounded) Len() int {
	return b.items.ItemCount()
}

// Flush removes every entry.
func (b *Bounded) Flush() {
	b.items.Flush()
}

func (b *Bounded) evictOldestThird() {
	items := b.items.Items()
	type aged struct {
		key string
		seq uint64
	}
	all := make([]aged, 0, len(items))
	for k, it := range items {
		all = append(all, aged{key: k, seq: it.Object.(entry).seq})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	n := len(all) / 3
	if n == 0 {
		n = 1
	}
	for _, a := range all[:n] {
		b.items.Delete(a.key)
	}
}
