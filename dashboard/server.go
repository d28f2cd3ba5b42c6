// Package dashboard provides a real-time HTTP ops surface for the SSR
// engine.
//
// It exposes:
//   - GET  /api/metrics/stream  – SSE stream of live cache + pool metrics (100 ms ticks)
//   - GET  /api/logs/stream     – SSE stream of log entries
//   - GET  /api/config          – current engine configuration (JSON)
//   - POST /api/config          – update a small subset of the Engine's Config fields (JSON body)
//   - GET  /api/bundle          – bundle load time and byte size (never the source itself)
//
// All SSE endpoints set appropriate headers so browsers can use EventSource
// without any additional libraries. CORS is wide-open so a dashboard
// frontend on a different origin can reach the Go backend directly.
package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/firasghr/ssrengine/bundle"
	"github.com/firasghr/ssrengine/config"
	"github.com/firasghr/ssrengine/engine"
)

// ─── Data Types ───────────────────────────────────────────────────────────────

// MetricsSnapshot is the JSON payload pushed to dashboard clients every tick.
type MetricsSnapshot struct {
	Timestamp    int64   `json:"timestamp"`
	Lookups      uint64  `json:"lookups"`
	HotHits      uint64  `json:"hot_hits"`
	ColdHits     uint64  `json:"cold_hits"`
	Misses       uint64  `json:"misses"`
	Promotions   uint64  `json:"promotions"`
	Insertions   uint64  `json:"insertions"`
	Evictions    uint64  `json:"evictions"`
	HitRate      float64 `json:"hit_rate"`
	ColdSize     int     `json:"cold_size"`
	ColdCapacity int     `json:"cold_capacity"`
	WorkerCount  int     `json:"worker_count"`
}

// BundleInfo reports facts about the loaded bundle without ever exposing its
// source.
type BundleInfo struct {
	Loaded     bool   `json:"loaded"`
	LoadedAtMS int64  `json:"loaded_at_ms,omitempty"`
	SizeBytes  int    `json:"size_bytes"`
	Note       string `json:"note,omitempty"`
}

// LogEntry is a structured log line streamed to the dashboard.
type LogEntry struct {
	Timestamp int64  `json:"ts"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// ConfigPayload is the subset of Config fields that can be hot-updated.
// Pool size and cache size are intentionally excluded: both require
// rebuilding the worker pool or cache, which this dashboard does not do.
// An update changes the Config value the Engine exposes (and GET reports);
// the running worker pool keeps the queue capacity and request timeout it
// was built with.
type ConfigPayload struct {
	QueueCapacity  int           `json:"queue_capacity"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// ─── Server ───────────────────────────────────────────────────────────────────

// Server provides HTTP endpoints for observing and lightly tuning a running
// Engine.
type Server struct {
	engine *engine.Engine
	cfg    *config.Config
	cfgMu  sync.RWMutex

	// Log ring buffer (capped at maxLogs).
	logMu    sync.Mutex
	logs     []LogEntry
	logSubs  map[chan LogEntry]struct{}
	logSubMu sync.Mutex

	// Metrics SSE subscribers.
	metricsSubs  map[chan MetricsSnapshot]struct{}
	metricsSubMu sync.Mutex

	closed atomic.Bool

	mux *http.ServeMux
}

const maxLogs = 10_000

// New creates a dashboard Server backed by e, observing and lightly tuning
// its configuration. Call ListenAndServe to start accepting connections.
func New(e *engine.Engine) *Server {
	s := &Server{
		engine:      e,
		cfg:         e.Config(),
		logs:        make([]LogEntry, 0, 512),
		logSubs:     make(map[chan LogEntry]struct{}),
		metricsSubs: make(map[chan MetricsSnapshot]struct{}),
		mux:         http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// AddLog appends a structured log entry to the ring buffer and fans it out to
// every active SSE /api/logs/stream subscriber.
func (s *Server) AddLog(level, message string) {
	entry := LogEntry{
		Timestamp: time.Now().UnixMilli(),
		Level:     level,
		Message:   message,
	}

	s.logMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[len(s.logs)-maxLogs:]
	}
	s.logMu.Unlock()

	s.logSubMu.Lock()
	for ch := range s.logSubs {
		select {
		case ch <- entry:
		default:
			// Slow subscriber – drop rather than block.
		}
	}
	s.logSubMu.Unlock()
}

// ListenAndServe starts the HTTP server on addr (e.g. ":8090") and blocks
// until the process exits. It also starts the background goroutine that ticks
// metrics to SSE subscribers every 100 ms.
//
// Timeouts are intentionally generous for an ops dashboard: SSE and log
// streams are long-lived connections that must not be cut off by short write
// deadlines. Operators exposing the dashboard on a public interface should
// wrap this in a reverse proxy with appropriate rate limiting.
func (s *Server) ListenAndServe(addr string) error {
	go s.metricsTicker()
	log.Printf("dashboard: listening on %s", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // disabled – SSE/log streams are unbounded
		IdleTimeout:  120 * time.Second,
	}
	return srv.ListenAndServe()
}

// Close stops the metrics ticker, so metrics-stream subscribers receive no
// further snapshots. It does not close open streams, reject new ones, or
// touch the underlying Engine.
func (s *Server) Close() {
	s.closed.Store(true)
}

// Handler returns the dashboard's http.Handler, for embedding in a larger
// mux or test server instead of calling ListenAndServe directly.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ─── Route registration ───────────────────────────────────────────────────────

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/metrics/stream", s.withCORS(s.handleMetricsStream))
	s.mux.HandleFunc("/api/logs/stream", s.withCORS(s.handleLogsStream))
	s.mux.HandleFunc("/api/config", s.withCORS(s.handleConfig))
	s.mux.HandleFunc("/api/bundle", s.withCORS(s.handleBundle))
}

// ─── CORS middleware ──────────────────────────────────────────────────────────

func (s *Server) withCORS(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h(w, r)
	}
}

// ─── /api/metrics/stream ─────────────────────────────────────────────────────

func (s *Server) metricsTicker() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if s.closed.Load() {
			return
		}
		snap := s.snapshot()
		s.metricsSubMu.Lock()
		for ch := range s.metricsSubs {
			select {
			case ch <- snap:
			default:
			}
		}
		s.metricsSubMu.Unlock()
	}
}

func (s *Server) snapshot() MetricsSnapshot {
	m := s.engine.CacheMetrics()
	return MetricsSnapshot{
		Timestamp:    time.Now().UnixMilli(),
		Lookups:      m.Lookups,
		HotHits:      m.HotHits,
		ColdHits:     m.ColdHits,
		Misses:       m.Misses,
		Promotions:   m.Promotions,
		Insertions:   m.Insertions,
		Evictions:    m.Evictions,
		HitRate:      m.HitRate,
		ColdSize:     m.ColdSize,
		ColdCapacity: m.ColdCapacity,
		WorkerCount:  s.engine.WorkerCount(),
	}
}

func (s *Server) handleMetricsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan MetricsSnapshot, 16)
	s.metricsSubMu.Lock()
	s.metricsSubs[ch] = struct{}{}
	s.metricsSubMu.Unlock()

	defer func() {
		s.metricsSubMu.Lock()
		delete(s.metricsSubs, ch)
		s.metricsSubMu.Unlock()
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			data, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// ─── /api/logs/stream ────────────────────────────────────────────────────────

func (s *Server) handleLogsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Send buffered history first.
	s.logMu.Lock()
	history := make([]LogEntry, len(s.logs))
	copy(history, s.logs)
	s.logMu.Unlock()

	for _, entry := range history {
		if err := sseWrite(w, entry); err != nil {
			return
		}
	}
	flusher.Flush()

	ch := make(chan LogEntry, 256)
	s.logSubMu.Lock()
	s.logSubs[ch] = struct{}{}
	s.logSubMu.Unlock()

	defer func() {
		s.logSubMu.Lock()
		delete(s.logSubs, ch)
		s.logSubMu.Unlock()
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-ch:
			if err := sseWrite(w, entry); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func sseWrite(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// ─── /api/config ─────────────────────────────────────────────────────────────

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.cfgMu.RLock()
		cfg := *s.cfg
		s.cfgMu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(cfg); err != nil {
			log.Printf("dashboard: encode config: %v", err)
		}

	case http.MethodPost:
		var payload ConfigPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		s.cfgMu.Lock()
		if payload.QueueCapacity > 0 {
			s.cfg.QueueCapacity = payload.QueueCapacity
		}
		if payload.RequestTimeout > 0 {
			s.cfg.RequestTimeout = payload.RequestTimeout
		}
		s.cfgMu.Unlock()
		s.AddLog("INFO", fmt.Sprintf("config updated via dashboard: queue_capacity=%d request_timeout=%s",
			payload.QueueCapacity, payload.RequestTimeout))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ─── /api/bundle ─────────────────────────────────────────────────────────────

// handleBundle reports the loaded bundle's load time and byte size. It never
// serves the bundle's JavaScript source: the dashboard is an ops surface, not
// a way to exfiltrate render logic.
func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	info := BundleInfo{
		Loaded:    bundle.IsLoaded(),
		SizeBytes: bundle.Size(),
		Note:      "source is never exposed here",
	}
	if info.Loaded {
		info.LoadedAtMS = bundle.LoadedAt().UnixMilli()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		log.Printf("dashboard: encode bundle info: %v", err)
	}
}
