// Package hotcache implements the per-owner "hot" tier of the render cache:
// a small fixed-size ring plus a bounded LRU map, meant to live entirely
// inside one goroutine's working set so reads never cross a memory barrier.
//
// Go has no first-class thread-local storage, and the render cache's callers
// are goroutines, not OS threads, so "thread-confined" is reinterpreted here
// as "owned by exactly one holder at a time, handed out and returned like any
// other pooled resource." Manager.Acquire/Release is built directly on
// sync.Pool, whose own per-P free list already gives a goroutine that isn't
// migrating between Ps a good chance of getting back the same *Local it used
// last time — the same affinity-without-synchronization property the spec's
// thread-local design is after, at the cost of being approximate rather than
// guaranteed. Because every other part of this cache is already documented
// as approximate (LRU, TTL sweep timing, metrics snapshots), this trade is in
// keeping with the rest of the design.
package hotcache

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/firasghr/ssrengine/htmlblob"
)

// UltraHotSize is the number of entries kept in the ring buffer tier. Eight
// entries occupy roughly two cache lines, which is small enough to scan
// linearly inside L1 on every Peek.
const UltraHotSize = 8

// HotMapCapacity bounds the second tier. 128 entries give roughly 16x the
// ultra-hot tier's working-set headroom for a few nanoseconds of extra
// lookup cost.
const HotMapCapacity = 128

type entry struct {
	fp      uint64
	html    htmlblob.Html
	created time.Time
}

// Manager owns the shared generation counter that every Local checks itself
// against. Bumping the generation is how Clear invalidates every Local
// without iterating or synchronizing with any of them (see spec.md §4.4 and
// §9, "thread-local hot state without cross-thread visibility").
type Manager struct {
	ttl        time.Duration
	generation atomic.Uint64
	pool       sync.Pool
}

// NewManager creates a Manager whose Locals expire entries after ttl. A ttl
// of 0 disables expiry.
func NewManager(ttl time.Duration) *Manager {
	m := &Manager{ttl: ttl}
	m.pool.New = func() any {
		return newLocal(ttl)
	}
	return m
}

// Acquire hands out a Local, synchronizing it to the Manager's current
// generation first. Callers must call Release when done; Locals must never
// be retained across goroutines or touched concurrently.
func (m *Manager) Acquire() *Local {
	l := m.pool.Get().(*Local)
	gen := m.generation.Load()
	if l.generation != gen {
		l.clear()
		l.generation = gen
	}
	return l
}

// Release returns l to the pool for reuse.
func (m *Manager) Release(l *Local) {
	m.pool.Put(l)
}

// Clear invalidates every outstanding Local. Because Locals are not tracked
// centrally, this does not touch them directly; instead it bumps the
// generation counter, and each Local self-clears the next time it is
// Acquired and notices the mismatch (spec.md invariant I5).
func (m *Manager) Clear() {
	m.generation.Add(1)
}

// Local is the per-owner two-tier cache. It must never be shared between
// concurrently-running goroutines (spec.md invariant I4); Manager enforces
// this by construction since sync.Pool never hands the same item to two
// concurrent Get calls.
type Local struct {
	ttl        time.Duration
	generation uint64

	ultraHot [UltraHotSize]*entry
	next     int

	hotMap *lru.Cache[uint64, *entry]
}

func newLocal(ttl time.Duration) *Local {
	m, err := lru.New[uint64, *entry](HotMapCapacity)
	if err != nil {
		// Only fails for a non-positive size, which HotMapCapacity never is.
		panic("hotcache: unexpected lru.New error: " + err.Error())
	}
	return &Local{ttl: ttl, hotMap: m}
}

func (l *Local) expired(created time.Time) bool {
	return l.ttl > 0 && time.Since(created) > l.ttl
}

// Peek looks up fp without mutating eviction order — it is safe to call when
// the caller only needs read access. It scans the ultra-hot ring first (O(8)
// worst case), then the bounded map.
func (l *Local) Peek(fp uint64) (htmlblob.Html, bool) {
	for _, e := range l.ultraHot {
		if e == nil || e.fp != fp {
			continue
		}
		if l.expired(e.created) {
			return nil, false
		}
		return e.html, true
	}

	e, ok := l.hotMap.Peek(fp)
	if !ok {
		return nil, false
	}
	if l.expired(e.created) {
		l.hotMap.Remove(fp)
		return nil, false
	}
	return e.html, true
}

// Insert writes fp/html into the ring, displacing whatever occupied the next
// slot into the bounded LRU map. When the map exceeds its capacity the
// least-recently-used fingerprint is evicted automatically by the
// underlying lru.Cache.
func (l *Local) Insert(fp uint64, html htmlblob.Html) {
	e := &entry{fp: fp, html: html, created: time.Now()}

	displaced := l.ultraHot[l.next]
	l.ultraHot[l.next] = e
	l.next = (l.next + 1) % UltraHotSize

	if displaced != nil {
		l.hotMap.Add(displaced.fp, displaced)
	}
}

// clear resets both tiers and the ring index. Unexported: callers invalidate
// through Manager.Clear, not directly on a Local.
func (l *Local) clear() {
	for i := range l.ultraHot {
		l.ultraHot[i] = nil
	}
	l.next = 0
	l.hotMap.Purge()
}
