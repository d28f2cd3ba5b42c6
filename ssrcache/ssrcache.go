// Package ssrcache glues the hot and cold render-cache tiers together behind
// a single Cache type, in the spirit of the teacher's SessionManager: one
// object that owns a shared collaborator (the cold tier, analogous to the
// shared sessions map) and coordinates per-caller state (the hot tier,
// analogous to per-session state) without making the caller juggle both
// directly.
package ssrcache

import (
	"sync/atomic"
	"time"

	"github.com/firasghr/ssrengine/coldcache"
	"github.com/firasghr/ssrengine/hotcache"
	"github.com/firasghr/ssrengine/htmlblob"
	"github.com/firasghr/ssrengine/urlkey"
)

// metrics holds every counter from spec.md §3 as a plain atomic value.
// Relaxed atomics are enough here: readers accept a non-linearizable
// snapshot, which is the same trade-off the teacher's metrics.Metrics makes
// for request counters.
type metrics struct {
	lookups      atomic.Uint64
	hotHits      atomic.Uint64
	coldHits     atomic.Uint64
	misses       atomic.Uint64
	promotions   atomic.Uint64
	insertions   atomic.Uint64
	evictions    atomic.Uint64
	lastAccessNs atomic.Int64
}

// reset zeroes every counter via atomic stores so a concurrent reader never
// observes a torn, non-atomic struct replacement.
func (m *metrics) reset() {
	m.lookups.Store(0)
	m.hotHits.Store(0)
	m.coldHits.Store(0)
	m.misses.Store(0)
	m.promotions.Store(0)
	m.insertions.Store(0)
	m.evictions.Store(0)
	m.lastAccessNs.Store(0)
}

// MetricsSnapshot is a point-in-time, non-linearizable view of the cache's
// counters plus a couple of derived fields.
type MetricsSnapshot struct {
	Lookups      uint64
	HotHits      uint64
	ColdHits     uint64
	Misses       uint64
	Promotions   uint64
	Insertions   uint64
	Evictions    uint64
	LastAccessNs int64
	ColdSize     int
	ColdCapacity int
	HitRate      float64
}

// Cache is the SSR render cache façade: hot tier over cold tier, with
// metrics and a generation-based Clear.
type Cache struct {
	hot *hotcache.Manager
	cld *coldcache.Cache
	m   metrics
}

// Config configures a new Cache.
type Config struct {
	// ColdCapacity is the maximum number of entries the cold tier holds.
	ColdCapacity int
	// TTL applies to both tiers; 0 disables expiry.
	TTL time.Duration
}

// New creates a Cache per cfg.
func New(cfg Config) *Cache {
	return &Cache{
		hot: hotcache.NewManager(cfg.TTL),
		cld: coldcache.New(cfg.ColdCapacity, cfg.TTL),
	}
}

// TryGet looks up url, checking the caller's hot tier first and falling back
// to the shared cold tier, promoting a cold hit into the hot tier on the way
// out. Returns (nil, false) on a full miss.
func (c *Cache) TryGet(url string) (htmlblob.Html, bool) {
	start := time.Now()
	c.m.lookups.Add(1)
	fp := urlkey.Hash(url)

	local := c.hot.Acquire()
	defer c.hot.Release(local)

	if html, ok := local.Peek(fp); ok {
		c.m.hotHits.Add(1)
		c.m.lastAccessNs.Store(time.Since(start).Nanoseconds())
		return html, true
	}

	if html, ok := c.cld.Get(fp, url); ok {
		c.m.coldHits.Add(1)
		local.Insert(fp, html)
		c.m.promotions.Add(1)
		c.m.lastAccessNs.Store(time.Since(start).Nanoseconds())
		return html, true
	}

	c.m.misses.Add(1)
	c.m.lastAccessNs.Store(time.Since(start).Nanoseconds())
	return nil, false
}

// Insert stores html under url in both the cold tier and the calling
// goroutine's hot tier.
func (c *Cache) Insert(url string, html htmlblob.Html) {
	fp := urlkey.Hash(url)

	evicted := c.cld.Insert(fp, url, html)
	if evicted > 0 {
		c.m.evictions.Add(uint64(evicted))
	}
	c.m.insertions.Add(1)

	local := c.hot.Acquire()
	local.Insert(fp, html)
	c.hot.Release(local)
}

// Invalidate removes url from the cold tier. Per spec.md §4.8 and §9, this
// is best-effort with respect to the hot tier: any goroutine's hot-tier copy
// may still be served until it expires (TTL) or a subsequent ClearCache
// bumps the generation. Single-URL invalidation does not touch the hot
// tier's generation.
func (c *Cache) Invalidate(url string) {
	fp := urlkey.Hash(url)
	c.cld.Remove(fp)
}

// InvalidatePrefix removes every cached URL starting with prefix. O(N) over
// the cold tier; intended for low-frequency admin use.
func (c *Cache) InvalidatePrefix(prefix string) int {
	return c.cld.RemoveByPrefix(prefix)
}

// Clear empties the cold tier and bumps the hot-tier generation, so that
// every goroutine's next TryGet call observes a clean slate (spec.md
// invariant I5) without any cross-goroutine coordination beyond the
// generation counter itself.
func (c *Cache) Clear() {
	c.cld.Clear()
	c.hot.Clear()
	c.m.reset()
}

// Metrics returns a snapshot of the cache's counters.
func (c *Cache) Metrics() MetricsSnapshot {
	lookups := c.m.lookups.Load()
	hot := c.m.hotHits.Load()
	cold := c.m.coldHits.Load()

	var hitRate float64
	if lookups > 0 {
		hitRate = float64(hot+cold) / float64(lookups)
	}

	return MetricsSnapshot{
		Lookups:      lookups,
		HotHits:      hot,
		ColdHits:     cold,
		Misses:       c.m.misses.Load(),
		Promotions:   c.m.promotions.Load(),
		Insertions:   c.m.insertions.Load(),
		Evictions:    c.m.evictions.Load(),
		LastAccessNs: c.m.lastAccessNs.Load(),
		ColdSize:     c.cld.Len(),
		ColdCapacity: c.cld.Capacity(),
		HitRate:      hitRate,
	}
}
