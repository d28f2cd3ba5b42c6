// Package coldcache implements the shared, sharded "cold" tier of the render
// cache: a striped concurrent map with TTL expiry and a single-evictor,
// bounded-heap approximate-LRU batch eviction policy.
//
// The shard layout (per-shard RWMutex, per-shard entry index) is grounded on the arena-cache example's shard design; the
// single-evictor guard is the same idea as a distributed-lock's "only one
// holder at a time" contract, implemented here with a single CAS instead of
// a blocking mutex since a losing goroutine should skip eviction entirely
// rather than wait for it.
package coldcache

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"

	"github.com/firasghr/ssrengine/htmlblob"
)

// DefaultShardCount is the recommended shard count; benchmarks in the
// reference design showed roughly 1.8x throughput over a smaller default at
// 8+ concurrent threads.
const DefaultShardCount = 128

// minBatch is the floor on how many entries a single eviction pass removes,
// even when 2% of capacity would round down to fewer.
const minBatch = 8

type coldEntry struct {
	fp         uint64
	url        string
	html       htmlblob.Html
	lastAccess uint64
	createdAt  time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[uint64]*coldEntry
}

// Cache is the shared cold tier. It is safe for concurrent use by any number
// of goroutines.
type Cache struct {
	shards      []*shard
	maxEntries  int
	ttl         time.Duration
	accessCtr   atomic.Uint64
	evicting    atomic.Bool
	evictionsCt atomic.Uint64
}

// New creates a Cache with the given total capacity and optional ttl (0
// disables expiry). Capacity is enforced across the whole cache, not
// per-shard.
func New(maxEntries int, ttl time.Duration) *Cache {
	c := &Cache{
		shards:     make([]*shard, DefaultShardCount),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[uint64]*coldEntry)}
	}
	return c
}

func (c *Cache) shardFor(fp uint64) *shard {
	return c.shards[fp%uint64(len(c.shards))]
}

// Get looks up fp and, if present and not expired, verifies that url matches
// the stored URL before returning a hit. Verifying url here (rather than
// trusting the fingerprint alone, as the hot tier does) costs one string
// compare and removes the fingerprint-collision risk for the tier that
// already carries the URL for free; see DESIGN.md, "Open Question
// decisions".
func (c *Cache) Get(fp uint64, url string) (htmlblob.Html, bool) {
	s := c.shardFor(fp)

	s.mu.RLock()
	e, ok := s.entries[fp]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.ttl > 0 && time.Since(e.createdAt) > c.ttl {
		s.mu.Lock()
		if cur, ok := s.entries[fp]; ok && cur == e {
			delete(s.entries, fp)
		}
		s.mu.Unlock()
		return nil, false
	}

	if e.url != url {
		return nil, false
	}

	atomic.StoreUint64(&e.lastAccess, c.accessCtr.Add(1))
	return e.html, true
}

// Insert stores html under fp/url, triggering batch eviction first if the
// cache is at or above capacity. It returns the number of entries evicted as
// a side effect of this call (0 if none, because capacity wasn't reached or
// another goroutine was already evicting).
func (c *Cache) Insert(fp uint64, url string, html htmlblob.Html) int {
	evicted := 0
	if c.maxEntries > 0 && c.Len() >= c.maxEntries {
		evicted = c.evictBatch()
	}

	s := c.shardFor(fp)
	e := &coldEntry{
		fp:        fp,
		url:       url,
		html:      html,
		createdAt: time.Now(),
	}
	e.lastAccess = c.accessCtr.Add(1)

	s.mu.Lock()
	s.entries[fp] = e
	s.mu.Unlock()

	return evicted
}

// Remove deletes fp from the cache. It reports whether an entry was present.
func (c *Cache) Remove(fp uint64) bool {
	s := c.shardFor(fp)
	s.mu.Lock()
	_, ok := s.entries[fp]
	delete(s.entries, fp)
	s.mu.Unlock()
	return ok
}

// RemoveByPrefix deletes every entry whose URL starts with prefix. This is an
// O(N) full-map scan and is intended for low-frequency admin operations
// only, per spec.md §4.3.
func (c *Cache) RemoveByPrefix(prefix string) int {
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for fp, e := range s.entries {
			if len(e.url) >= len(prefix) && e.url[:len(prefix)] == prefix {
				delete(s.entries, fp)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Clear empties every shard.
func (c *Cache) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[uint64]*coldEntry)
		s.mu.Unlock()
	}
}

// Len returns the current total number of entries across all shards.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Capacity returns the configured maximum entry count.
func (c *Cache) Capacity() int { return c.maxEntries }

// Evictions returns the cumulative count of entries removed by batch
// eviction (not counting TTL-driven removals on Get, or explicit Remove
// calls).
func (c *Cache) Evictions() uint64 { return c.evictionsCt.Load() }

// evictCandidate is one item tracked by the bounded max-heap during a batch
// eviction pass.
type evictCandidate struct {
	fp         uint64
	lastAccess uint64
}

// candidateHeap is a max-heap on lastAccess: Pop removes the candidate with
// the *largest* lastAccess, so that pushing a new, older candidate when the
// heap is full means popping out the "least old" member, leaving the heap
// holding the batch-many oldest entries seen so far.
type candidateHeap []evictCandidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].lastAccess > h[j].lastAccess }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(evictCandidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// evictBatch attempts to become the single evictor, and if successful,
// removes the batch-many least-recently-used entries across the whole
// cache. If another goroutine is already evicting, this call is a no-op and
// returns 0 — the caller's insert proceeds anyway, temporarily exceeding
// capacity by one entry per such insert until a later insert successfully
// evicts (spec.md §4.3 step 1).
func (c *Cache) evictBatch() int {
	if !c.evicting.CompareAndSwap(false, true) {
		return 0
	}
	defer c.evicting.Store(false)

	batch := c.maxEntries * 2 / 100
	if batch < minBatch {
		batch = minBatch
	}

	h := &candidateHeap{}
	heap.Init(h)

	for _, s := range c.shards {
		s.mu.RLock()
		for fp, e := range s.entries {
			cand := evictCandidate{fp: fp, lastAccess: atomic.LoadUint64(&e.lastAccess)}
			if h.Len() < batch {
				heap.Push(h, cand)
			} else if cand.lastAccess < (*h)[0].lastAccess {
				heap.Pop(h)
				heap.Push(h, cand)
			}
		}
		s.mu.RUnlock()
	}

	removed := 0
	for _, cand := range *h {
		if c.Remove(cand.fp) {
			removed++
		}
	}
	c.evictionsCt.Add(uint64(removed))
	return removed
}
