// Package workerpool runs a fixed set of OS threads, each confined to its
// own JS runtime, behind a bounded request/reply channel — generalizing the
// teacher's WorkerPool from arbitrary job closures to render requests with a
// typed reply and an enqueue timeout, in the spirit of the teacher's
// SessionManager.CreateSessions for concurrent, partially-fallible startup.
package workerpool

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/firasghr/ssrengine/enginerr"
	"github.com/firasghr/ssrengine/jsruntime"
	"github.com/firasghr/ssrengine/logger"
)

type request struct {
	url   string
	data  string
	reply chan reply
}

type reply struct {
	html string
	err  error
}

// Config configures a Pool.
type Config struct {
	// Size is the number of worker OS threads to spawn.
	Size int
	// QueueCapacity bounds the pending-request channel.
	QueueCapacity int
	// PinThreads requests CPU-core pinning, round-robin across workers.
	// Honored on Linux only; a no-op elsewhere.
	PinThreads bool
	// RequestTimeout bounds how long Render waits to enqueue a request
	// before giving up with a Timeout error. Zero disables the timeout.
	RequestTimeout time.Duration
	// RenderFunction is the global JS identifier every worker invokes.
	RenderFunction string
	// Log receives startup warnings (e.g. a worker that failed to
	// initialize). May be nil.
	Log *logger.Logger
}

// Pool is a fixed-size pool of JS-runtime-confined worker threads.
type Pool struct {
	cfg      Config
	requests chan request

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	liveWorkers atomic.Int64
}

// New spawns cfg.Size worker threads, each initializing its own jsruntime.
// Workers start concurrently; a worker whose runtime fails to initialize
// decrements the live count and exits without ever entering its serve loop,
// per the pool's "continue with fewer workers" policy. New only fails if
// every worker failed to start.
func New(cfg Config) (*Pool, error) {
	// Clamped to at least one worker here rather than honoring 0 literally;
	// engine's config validation already rejects pool_size <= 0, so a
	// zero-worker pool that can't ever serve a request and times out every
	// enqueue is unreachable in practice. Callers that need that literal
	// edge case exercised should saturate a single worker and fill the queue
	// instead (see TestPool_EnqueueTimeoutWhenQueueFullAndWorkersBlocked),
	// which is this package's own test.
	if cfg.Size <= 0 {
		cfg.Size = 1
	}

	p := &Pool{
		cfg:      cfg,
		requests: make(chan request, cfg.QueueCapacity),
		closed:   make(chan struct{}),
	}

	type startResult struct {
		workerID int
		err      error
	}
	results := make(chan startResult, cfg.Size)
	var startWG sync.WaitGroup

	for i := 0; i < cfg.Size; i++ {
		startWG.Add(1)
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()

			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			if cfg.PinThreads {
				if err := pinCurrentThread(id); err != nil && cfg.Log != nil {
					cfg.Log.Errorf("workerpool: worker %d: %v", id, err)
				}
			}

			rt, err := jsruntime.New()
			if err != nil {
				results <- startResult{id, enginerr.New(enginerr.V8Init, "workerpool.New", fmt.Errorf("worker %d: %w", id, err))}
				startWG.Done()
				return
			}
			defer rt.Close()

			p.liveWorkers.Add(1)
			defer p.liveWorkers.Add(-1)
			results <- startResult{id, nil}
			startWG.Done()

			p.serve(rt)
		}(i)
	}

	startWG.Wait()
	close(results)

	var firstErr error
	failed := 0
	for r := range results {
		if r.err != nil {
			failed++
			if firstErr == nil {
				firstErr = r.err
			}
			if cfg.Log != nil {
				cfg.Log.Errorf("workerpool: %v", r.err)
			}
		}
	}

	if failed == cfg.Size {
		return nil, enginerr.New(enginerr.V8Init, "workerpool.New", fmt.Errorf("all %d worker(s) failed to start; first error: %w", cfg.Size, firstErr))
	}
	if failed > 0 && cfg.Log != nil {
		cfg.Log.Infof("workerpool: started with %d/%d workers after %d startup failure(s)", cfg.Size-failed, cfg.Size, failed)
	}

	return p, nil
}

func (p *Pool) serve(rt *jsruntime.Runtime) {
	for {
		select {
		case req := <-p.requests:
			html, err := rt.Render(p.cfg.RenderFunction, req.url, req.data)
			req.reply <- reply{html: html, err: err}
		case <-p.closed:
			return
		}
	}
}

// Render enqueues (url, data) for rendering and blocks for the reply. It
// never returns JsExecution for an in-bundle exception (the runtime already
// turns those into an HTML error page); it returns an error for enqueue
// timeout, pool shutdown, or a failure the runtime reports itself (such as a
// render function resolving with a non-string value).
func (p *Pool) Render(url, data string) (string, error) {
	req := request{url: url, data: data, reply: make(chan reply, 1)}

	if err := p.enqueue(req); err != nil {
		return "", err
	}

	rep, ok := <-req.reply
	if !ok {
		return "", enginerr.New(enginerr.JsExecution, "workerpool.Render", fmt.Errorf("worker crashed without replying"))
	}
	return rep.html, rep.err
}

func (p *Pool) enqueue(req request) error {
	if p.cfg.RequestTimeout <= 0 {
		select {
		case p.requests <- req:
			return nil
		case <-p.closed:
			return enginerr.New(enginerr.PoolFull, "workerpool.Render", fmt.Errorf("pool is shutting down"))
		}
	}

	timer := time.NewTimer(p.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case p.requests <- req:
		return nil
	case <-timer.C:
		return enginerr.New(enginerr.Timeout, "workerpool.Render", fmt.Errorf("enqueue timed out after %s", p.cfg.RequestTimeout))
	case <-p.closed:
		return enginerr.New(enginerr.PoolFull, "workerpool.Render", fmt.Errorf("pool is shutting down"))
	}
}

// WorkerCount returns the number of currently live workers (at most
// cfg.Size, possibly fewer after startup failures).
func (p *Pool) WorkerCount() int {
	return int(p.liveWorkers.Load())
}

// Stop signals every worker to exit its serve loop and waits for all worker
// goroutines (including ones that failed to start) to finish. Requests still
// in flight complete; their replies are discarded if no one is listening.
// Stop must be called at most once.
func (p *Pool) Stop() {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	p.wg.Wait()
}
