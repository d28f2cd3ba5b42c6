// Package telemetry exposes the render cache and worker pool's live counters
// as Prometheus metrics. It never computes its own numbers: every gauge and
// counter is a thin GaugeFunc/CounterFunc wrapper reading from
// engine.Engine's existing accessors, the same pattern the teacher's
// egress metrics use for promauto-registered collectors.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/firasghr/ssrengine/engine"
)

const namespace = "ssrengine"

// Collector registers a set of GaugeFunc/CounterFunc metrics against a
// dedicated prometheus.Registry, reading live values from an *engine.Engine
// on every scrape. It does not run a background ticker: Prometheus pulls, it
// does not push.
type Collector struct {
	registry *prometheus.Registry
}

// NewCollector builds a Collector wired to e. The returned Collector owns
// its own registry rather than using prometheus.DefaultRegisterer, so a
// process embedding multiple engines can run one Collector per engine
// without name collisions.
func NewCollector(e *engine.Engine) *Collector {
	reg := prometheus.NewRegistry()

	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "worker_count",
		Help:      "Number of currently live render workers.",
	}, func() float64 { return float64(e.WorkerCount()) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Total number of cache lookups (hits and misses combined).",
	}, func() float64 { return float64(e.CacheMetrics().Lookups) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hot_hits_total",
		Help:      "Total number of lookups served from the hot tier.",
	}, func() float64 { return float64(e.CacheMetrics().HotHits) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "cold_hits_total",
		Help:      "Total number of lookups served from the cold tier.",
	}, func() float64 { return float64(e.CacheMetrics().ColdHits) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total number of cache misses that fell through to a render.",
	}, func() float64 { return float64(e.CacheMetrics().Misses) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "promotions_total",
		Help:      "Total number of cold-tier hits promoted into the hot tier.",
	}, func() float64 { return float64(e.CacheMetrics().Promotions) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "insertions_total",
		Help:      "Total number of render results inserted into the cache.",
	}, func() float64 { return float64(e.CacheMetrics().Insertions) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Total number of cold-tier entries evicted to make room.",
	}, func() float64 { return float64(e.CacheMetrics().Evictions) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "cold_size",
		Help:      "Current number of entries held in the cold tier.",
	}, func() float64 { return float64(e.CacheMetrics().ColdSize) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "cold_capacity",
		Help:      "Configured capacity of the cold tier.",
	}, func() float64 { return float64(e.CacheMetrics().ColdCapacity) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hit_rate",
		Help:      "Fraction of lookups served from hot or cold tier (0 to 1).",
	}, func() float64 { return e.CacheMetrics().HitRate })

	return &Collector{registry: reg}
}

// Handler returns an http.Handler serving the collected metrics in
// Prometheus text exposition format. Formatting is entirely delegated to
// promhttp; this package never hand-rolls the wire format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
