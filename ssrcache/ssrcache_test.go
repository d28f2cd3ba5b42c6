package ssrcache_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/firasghr/ssrengine/htmlblob"
	"github.com/firasghr/ssrengine/ssrcache"
)

func TestCache_MissThenInsertThenHit(t *testing.T) {
	c := ssrcache.New(ssrcache.Config{ColdCapacity: 100})

	if _, ok := c.TryGet("/home"); ok {
		t.Fatal("expected miss before insert")
	}

	c.Insert("/home", htmlblob.New([]byte("<h1>/home</h1>")))

	got, ok := c.TryGet("/home")
	if !ok {
		t.Fatal("expected hit after insert")
	}
	if got.String() != "<h1>/home</h1>" {
		t.Fatalf("unexpected html: %q", got.String())
	}
}

func TestCache_RoundTripMetrics(t *testing.T) {
	c := ssrcache.New(ssrcache.Config{ColdCapacity: 100})
	c.TryGet("/home")                                          // miss
	c.Insert("/home", htmlblob.New([]byte("<h1>/home</h1>")))  // insertion
	c.TryGet("/home")                                          // hot hit (same goroutine)

	snap := c.Metrics()
	if snap.Lookups != 2 {
		t.Fatalf("expected 2 lookups, got %d", snap.Lookups)
	}
	if snap.Misses != 1 {
		t.Fatalf("expected 1 miss, got %d", snap.Misses)
	}
	if snap.Insertions != 1 {
		t.Fatalf("expected 1 insertion, got %d", snap.Insertions)
	}
	if snap.HotHits != 1 {
		t.Fatalf("expected 1 hot hit, got %d", snap.HotHits)
	}
}

func TestCache_ClearForcesMissEverywhere(t *testing.T) {
	c := ssrcache.New(ssrcache.Config{ColdCapacity: 100})
	c.Insert("/home", htmlblob.New([]byte("x")))
	c.Clear()

	if _, ok := c.TryGet("/home"); ok {
		t.Fatal("expected miss after Clear")
	}
	snap := c.Metrics()
	if snap.Insertions != 0 {
		t.Fatalf("expected metrics reset after Clear, got insertions=%d", snap.Insertions)
	}
}

func TestCache_EvictionSurfacesInMetrics(t *testing.T) {
	c := ssrcache.New(ssrcache.Config{ColdCapacity: 8})
	for i := 0; i < 9; i++ {
		url := fmt.Sprintf("/page-%d", i)
		c.Insert(url, htmlblob.New([]byte(url)))
	}
	snap := c.Metrics()
	if snap.Evictions == 0 {
		t.Fatal("expected evictions to be recorded once capacity was exceeded")
	}
	if snap.ColdSize > snap.ColdCapacity {
		t.Fatalf("cold size %d exceeds capacity %d", snap.ColdSize, snap.ColdCapacity)
	}
}

func TestCache_TTLExpiryResultsInMiss(t *testing.T) {
	c := ssrcache.New(ssrcache.Config{ColdCapacity: 100, TTL: 10 * time.Millisecond})
	c.Insert("/home", htmlblob.New([]byte("x")))
	time.Sleep(25 * time.Millisecond)
	if _, ok := c.TryGet("/home"); ok {
		t.Fatal("expected miss after ttl elapses")
	}
}
