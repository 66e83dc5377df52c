package embedding

import (
	"container/list"
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

// CacheStats is reported through the metrics service.
type CacheStats interface {
	CacheHit()
	CacheMiss()
	CacheEviction()
	CacheSize(n int)
}

type nopStats struct{}

func (nopStats) CacheHit()      {}
func (nopStats) CacheMiss()     {}
func (nopStats) CacheEviction() {}
func (nopStats) CacheSize(int)  {}

type cacheEntry struct {
	key     uint64
	vec     []float32
	expires time.Time
}

// Cache wraps an Embedder with a bounded LRU keyed on a stable 64-bit
// fingerprint of the normalised text. Entries carry a TTL; expired reads
// are misses and evict the entry. Concurrent misses for the same key
// coalesce onto a single outbound call.
type Cache struct {
	inner   Embedder
	ttl     time.Duration
	maxSize int
	stats   CacheStats

	mu    sync.RWMutex
	ll    *list.List
	items map[uint64]*list.Element

	sf  singleflight.Group
	now func() time.Time
}

func NewCache(inner Embedder, maxSize int, ttl time.Duration, stats CacheStats) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if stats == nil {
		stats = nopStats{}
	}
	return &Cache{
		inner:   inner,
		ttl:     ttl,
		maxSize: maxSize,
		stats:   stats,
		ll:      list.New(),
		items:   make(map[uint64]*list.Element),
		now:     time.Now,
	}
}

// Fingerprint hashes the trimmed, lowercased, space-normalised text.
func Fingerprint(text string) uint64 {
	normalised := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(text))), " ")
	return xxhash.Sum64String(normalised)
}

// EmbedOne returns the vector for a single text, consulting the cache
// first. The underlying embedder is called at most once per in-flight key.
func (c *Cache) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	key := Fingerprint(text)

	if vec, ok := c.get(key); ok {
		c.stats.CacheHit()
		return vec, nil
	}
	c.stats.CacheMiss()

	v, err, _ := c.sf.Do(strconv.FormatUint(key, 16), func() (any, error) {
		// Another coalesced caller may have populated the entry already.
		if vec, ok := c.get(key); ok {
			return vec, nil
		}
		vecs, err := c.inner.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		c.put(key, vecs[0])
		return vecs[0], nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

func (c *Cache) get(key uint64) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expires) {
		c.ll.Remove(el)
		delete(c.items, key)
		c.stats.CacheEviction()
		c.stats.CacheSize(len(c.items))
		return nil, false
	}
	c.ll.MoveToFront(el)
	return entry.vec, true
}

func (c *Cache) put(key uint64, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.vec = vec
		entry.expires = c.now().Add(c.ttl)
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cacheEntry{key: key, vec: vec, expires: c.now().Add(c.ttl)})
	c.items[key] = el
	for c.ll.Len() > c.maxSize {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
		c.stats.CacheEviction()
	}
	c.stats.CacheSize(len(c.items))
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
