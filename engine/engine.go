// Package engine is the SSR engine's public façade: it owns the bundle,
// worker pool, and render cache, and exposes the render/invalidate/metrics
// surface every collaborator calls into. Grounded on the reference engine's
// SsrEngine, generalized from its feature-gated V8-pool-plus-cache pairing
// to a single always-on Engine with optional request coalescing.
package engine

import (
	"encoding/json"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/firasghr/ssrengine/bundle"
	"github.com/firasghr/ssrengine/config"
	"github.com/firasghr/ssrengine/enginerr"
	"github.com/firasghr/ssrengine/htmlblob"
	"github.com/firasghr/ssrengine/logger"
	"github.com/firasghr/ssrengine/schemawatch"
	"github.com/firasghr/ssrengine/ssrcache"
	"github.com/firasghr/ssrengine/workerpool"
)

// Engine coordinates the worker pool and render cache behind a single
// render/invalidate/metrics surface.
type Engine struct {
	cfg   *config.Config
	pool  *workerpool.Pool
	cache *ssrcache.Cache
	log   *logger.Logger

	// coalesce, when non-nil, collapses concurrent cache misses for the
	// same URL+data pair into a single worker-pool render. This resolves
	// the "should misses single-flight" open question as an opt-in,
	// controlled by Config.CoalesceMisses; the engine is the right home for
	// it (not the cache) because the thing being deduplicated is a render
	// dispatch, which only the engine knows how to issue.
	coalesce *singleflight.Group

	// schema, when non-nil, flags data_json structural drift per render
	// function. Disabled by default; enable with EnableSchemaWatch. It never
	// turns a render into an error — only a log line.
	schema *schemawatch.Watcher
}

// EnableSchemaWatch turns on data_json schema drift detection and logging
// for subsequent renders. It is idempotent; calling it again is a no-op if
// already enabled.
func (e *Engine) EnableSchemaWatch() {
	if e.schema == nil {
		e.schema = schemawatch.NewWatcher()
	}
}

// New builds an Engine from cfg: it loads the bundle, starts the worker
// pool, and constructs the render cache. cfg is validated first; New never
// mutates cfg.
func New(cfg *config.Config, log *logger.Logger) (*Engine, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	if !bundle.IsLoaded() {
		if err := bundle.Load(cfg.BundlePath); err != nil {
			return nil, err
		}
	}

	pool, err := workerpool.New(workerpool.Config{
		Size:           cfg.PoolSize,
		QueueCapacity:  cfg.QueueCapacity,
		PinThreads:     cfg.PinThreads,
		RequestTimeout: cfg.RequestTimeout,
		RenderFunction: cfg.RenderFunction,
		Log:            log,
	})
	if err != nil {
		return nil, err
	}

	cache := ssrcache.New(ssrcache.Config{
		ColdCapacity: cfg.CacheSize,
		TTL:          cfg.CacheTTL,
	})

	e := &Engine{cfg: cfg, pool: pool, cache: cache, log: log}
	if cfg.CoalesceMisses {
		e.coalesce = &singleflight.Group{}
	}
	return e, nil
}

// Render renders url with an empty data payload, serving from cache when
// possible.
func (e *Engine) Render(url string) (htmlblob.Html, error) {
	return e.RenderWithData(url, "{}")
}

// RenderWithData renders url with the given JSON data payload, serving from
// cache when possible and populating the cache on a miss.
func (e *Engine) RenderWithData(url, dataJSON string) (htmlblob.Html, error) {
	if dataJSON == "" {
		dataJSON = "{}"
	}
	if !json.Valid([]byte(dataJSON)) {
		return nil, enginerr.New(enginerr.BadData, "engine.RenderWithData", fmt.Errorf("data is not valid JSON"))
	}
	e.watchSchema(dataJSON)

	if html, ok := e.cache.TryGet(url); ok {
		return html, nil
	}

	html, err := e.renderMiss(url, dataJSON)
	if err != nil {
		return nil, err
	}

	e.cache.Insert(url, html)
	return html, nil
}

// renderMiss dispatches to the worker pool, coalescing concurrent misses for
// the same url+data when Config.CoalesceMisses is set.
func (e *Engine) renderMiss(url, dataJSON string) (htmlblob.Html, error) {
	if e.coalesce == nil {
		s, err := e.pool.Render(url, dataJSON)
		if err != nil {
			return nil, err
		}
		return htmlblob.New([]byte(s)), nil
	}

	key := url + "\x00" + dataJSON
	v, err, _ := e.coalesce.Do(key, func() (interface{}, error) {
		return e.pool.Render(url, dataJSON)
	})
	if err != nil {
		return nil, err
	}
	return htmlblob.New([]byte(v.(string))), nil
}

// RenderUncached renders url with the given JSON data payload, always
// dispatching to the worker pool and never touching the cache.
func (e *Engine) RenderUncached(url, dataJSON string) (string, error) {
	if dataJSON == "" {
		dataJSON = "{}"
	}
	if !json.Valid([]byte(dataJSON)) {
		return "", enginerr.New(enginerr.BadData, "engine.RenderUncached", fmt.Errorf("data is not valid JSON"))
	}
	return e.pool.Render(url, dataJSON)
}

// watchSchema logs, but never fails on, data_json structural drift when
// schema watching is enabled.
func (e *Engine) watchSchema(dataJSON string) {
	if e.schema == nil {
		return
	}
	mismatches := e.schema.Check(e.cfg.RenderFunction, dataJSON)
	if len(mismatches) > 0 && e.log != nil {
		e.log.Infof("data_json schema drift for %s:\n%s", e.cfg.RenderFunction, schemawatch.FormatMismatches(mismatches))
	}
}

// Invalidate removes url from the cold tier. It does not touch hot tiers: a
// goroutine's hot-tier copy of url may still be served until its TTL expires
// or ClearCache runs.
func (e *Engine) Invalidate(url string) {
	e.cache.Invalidate(url)
}

// InvalidatePrefix removes every cached URL starting with prefix, returning
// the number of entries removed.
func (e *Engine) InvalidatePrefix(prefix string) int {
	return e.cache.InvalidatePrefix(prefix)
}

// ClearCache empties the render cache.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

// CacheMetrics returns a snapshot of the render cache's counters.
func (e *Engine) CacheMetrics() ssrcache.MetricsSnapshot {
	return e.cache.Metrics()
}

// WorkerCount returns the number of currently live render workers.
func (e *Engine) WorkerCount() int {
	return e.pool.WorkerCount()
}

// Config returns the configuration the Engine was built with.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Close stops the worker pool. The Engine must not be used afterward.
func (e *Engine) Close() {
	e.pool.Stop()
}
