package hotcache_test

import (
	"testing"
	"time"

	"github.com/firasghr/ssrengine/hotcache"
	"github.com/firasghr/ssrengine/htmlblob"
)

func TestLocal_InsertThenPeekHits(t *testing.T) {
	m := hotcache.NewManager(0)
	l := m.Acquire()
	defer m.Release(l)

	l.Insert(42, htmlblob.New([]byte("<h1>hi</h1>")))
	got, ok := l.Peek(42)
	if !ok {
		t.Fatal("expected hit after insert")
	}
	if got.String() != "<h1>hi</h1>" {
		t.Fatalf("unexpected html: %q", got.String())
	}
}

func TestLocal_PeekMissForUnknownFingerprint(t *testing.T) {
	m := hotcache.NewManager(0)
	l := m.Acquire()
	defer m.Release(l)

	if _, ok := l.Peek(999); ok {
		t.Fatal("expected miss for unknown fingerprint")
	}
}

func TestLocal_RingDisplacesIntoHotMap(t *testing.T) {
	m := hotcache.NewManager(0)
	l := m.Acquire()
	defer m.Release(l)

	// Insert more than UltraHotSize entries; the earliest ones should be
	// displaced into the bounded map and still be reachable.
	for i := uint64(0); i < hotcache.UltraHotSize+1; i++ {
		l.Insert(i, htmlblob.New([]byte("x")))
	}
	if _, ok := l.Peek(0); !ok {
		t.Fatal("expected fingerprint 0 to survive via the hot map after being displaced from the ring")
	}
}

func TestLocal_TTLExpiry(t *testing.T) {
	m := hotcache.NewManager(10 * time.Millisecond)
	l := m.Acquire()
	defer m.Release(l)

	l.Insert(1, htmlblob.New([]byte("x")))
	time.Sleep(20 * time.Millisecond)
	if _, ok := l.Peek(1); ok {
		t.Fatal("expected entry to expire after ttl elapses")
	}
}

func TestManager_ClearBumpsGenerationAndSelfClearsOnNextAcquire(t *testing.T) {
	m := hotcache.NewManager(0)
	l := m.Acquire()
	l.Insert(7, htmlblob.New([]byte("x")))
	m.Release(l)

	m.Clear()

	l2 := m.Acquire()
	if _, ok := l2.Peek(7); ok {
		t.Fatal("expected miss after Clear bumped the generation")
	}
}
