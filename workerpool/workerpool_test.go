package workerpool_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/firasghr/ssrengine/bundle"
	"github.com/firasghr/ssrengine/enginerr"
	"github.com/firasghr/ssrengine/workerpool"
)

// The process bundle is a load-once singleton, so every test in this package
// shares one renderPage. URLs "/a", "/b", and "/c" are reserved by the
// enqueue-timeout test to force an artificially slow render (simulating a
// worker stuck mid-render); every other URL renders immediately.
const sharedBundle = `
	async function renderPage(url, data) {
		if (url === "/a" || url === "/b" || url === "/c") {
			var start = Date.now();
			while (Date.now() - start < 200) {}
		}
		return "<h1>" + url + "</h1>";
	}
`

var initBundleOnce sync.Once

func initBundle(t *testing.T) {
	t.Helper()
	initBundleOnce.Do(func() {
		if err := bundle.FromString(sharedBundle); err != nil {
			t.Fatalf("bundle.FromString: %v", err)
		}
	})
}

func TestPool_RenderRoundTrip(t *testing.T) {
	initBundle(t)

	p, err := workerpool.New(workerpool.Config{
		Size:           2,
		QueueCapacity:  8,
		RenderFunction: "renderPage",
	})
	if err != nil {
		t.Fatalf("workerpool.New: %v", err)
	}
	defer p.Stop()

	if p.WorkerCount() != 2 {
		t.Fatalf("expected 2 live workers, got %d", p.WorkerCount())
	}

	html, err := p.Render("/home", "{}")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if html != "<h1>/home</h1>" {
		t.Fatalf("unexpected html: %q", html)
	}
}

func TestPool_ConcurrentRendersAllSucceed(t *testing.T) {
	initBundle(t)

	p, err := workerpool.New(workerpool.Config{
		Size:           4,
		QueueCapacity:  64,
		RenderFunction: "renderPage",
	})
	if err != nil {
		t.Fatalf("workerpool.New: %v", err)
	}
	defer p.Stop()

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := fmt.Sprintf("/page-%d", i)
			html, err := p.Render(url, "{}")
			if err != nil {
				errs <- err
				return
			}
			want := "<h1>" + url + "</h1>"
			if html != want {
				errs <- fmt.Errorf("page %d: got %q want %q", i, html, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestPool_EnqueueTimeoutWhenQueueFullAndWorkersBlocked(t *testing.T) {
	initBundle(t)

	p, err := workerpool.New(workerpool.Config{
		Size:           1,
		QueueCapacity:  1,
		RequestTimeout: 20 * time.Millisecond,
		RenderFunction: "renderPage",
	})
	if err != nil {
		t.Fatalf("workerpool.New: %v", err)
	}
	defer p.Stop()

	// Saturate the single worker and fill the one-slot queue with the
	// artificially slow "/a"/"/b" URLs, then expect the next enqueue to
	// time out.
	go p.Render("/a", "{}")
	go p.Render("/b", "{}")
	time.Sleep(5 * time.Millisecond)

	_, err = p.Render("/c", "{}")
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if !errors.Is(err, enginerr.Sentinel(enginerr.Timeout)) {
		t.Fatalf("expected a Timeout-kind error, got: %v", err)
	}
}

func TestPool_StopDrainsWorkersWithoutPanic(t *testing.T) {
	initBundle(t)

	p, err := workerpool.New(workerpool.Config{
		Size:           2,
		QueueCapacity:  4,
		RenderFunction: "renderPage",
	})
	if err != nil {
		t.Fatalf("workerpool.New: %v", err)
	}

	if _, err := p.Render("/home", "{}"); err != nil {
		t.Fatalf("Render: %v", err)
	}
	p.Stop()
}
