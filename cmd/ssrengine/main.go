// ssrengine is a thin demo binary wiring config, bundle, engine, telemetry,
// and dashboard together.
//
// Startup sequence:
//  1. Initialise the logger.
//  2. Load configuration (JSON file or defaults).
//  3. Build the Engine (loads the bundle, starts the worker pool, builds the
//     render cache).
//  4. Start the telemetry /metrics endpoint and the ops dashboard.
//  5. Render whatever URLs are given on the command line, once each, as a
//     smoke test.
//  6. Block until OS signals SIGINT or SIGTERM, then perform a clean shutdown.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/firasghr/ssrengine/config"
	"github.com/firasghr/ssrengine/dashboard"
	"github.com/firasghr/ssrengine/engine"
	"github.com/firasghr/ssrengine/logger"
	"github.com/firasghr/ssrengine/telemetry"
)

func main() {
	// ── Flags ──────────────────────────────────────────────────────────────
	configFile := flag.String("config", "", "Path to JSON config file (optional; uses defaults if omitted)")
	dashboardAddr := flag.String("dashboard", ":8090", "Address for the ops dashboard HTTP server (e.g. :8090)")
	metricsAddr := flag.String("metrics", ":9090", "Address for the Prometheus /metrics endpoint (e.g. :9090)")
	flag.Parse()

	// ── Logger ─────────────────────────────────────────────────────────────
	log := logger.New(logger.LevelInfo)
	log.Info("ssrengine starting up")

	// ── Configuration ──────────────────────────────────────────────────────
	var cfg *config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.LoadConfig(*configFile)
		if err != nil {
			log.Errorf("failed to load config from %q: %v", *configFile, err)
			os.Exit(1)
		}
		log.Infof("configuration loaded from %q", *configFile)
	} else {
		cfg = config.DefaultConfig()
		log.Info("using default configuration")
	}

	// ── Engine ─────────────────────────────────────────────────────────────
	e, err := engine.New(cfg, log)
	if err != nil {
		log.Errorf("engine startup failed: %v", err)
		os.Exit(1)
	}
	log.Infof("engine started with %d render workers", e.WorkerCount())

	// ── Telemetry ──────────────────────────────────────────────────────────
	collector := telemetry.NewCollector(e)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server error: %v", err)
		}
	}()
	log.Infof("metrics server starting on %s", *metricsAddr)

	// ── Dashboard server ───────────────────────────────────────────────────
	dash := dashboard.New(e)
	go func() {
		if err := dash.ListenAndServe(*dashboardAddr); err != nil && err != http.ErrServerClosed {
			log.Errorf("dashboard server error: %v", err)
		}
	}()
	log.Infof("dashboard server starting on %s", *dashboardAddr)

	// ── Smoke-test renders ─────────────────────────────────────────────────
	// Any positional args after flags are treated as URLs to render once at
	// startup, so `ssrengine /home /about` prints rendered HTML immediately
	// without needing a caller to script it.
	for _, url := range flag.Args() {
		html, err := e.Render(url)
		if err != nil {
			log.Errorf("render %q failed: %v", url, err)
			continue
		}
		log.Infof("rendered %q (%d bytes)", url, len(html))
	}

	// ── Graceful shutdown ──────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	fmt.Println() // newline after ^C
	log.Infof("received signal %s; shutting down", sig)
	dash.AddLog("INFO", fmt.Sprintf("received signal %s; shutting down", sig))

	dash.Close()
	e.Close()

	metrics := e.CacheMetrics()
	log.Infof("final cache metrics – lookups: %d | hot hits: %d | cold hits: %d | misses: %d | hit rate: %.2f",
		metrics.Lookups, metrics.HotHits, metrics.ColdHits, metrics.Misses, metrics.HitRate)
	log.Info("ssrengine shut down cleanly")
}
