// Package config provides configuration loading and validation for the SSR
// engine. It supports JSON-based configuration loading with safe defaults
// optimized for a fixed-size render-worker pool.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/firasghr/ssrengine/enginerr"
)

var renderFnPattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

var validate = func() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("renderfn", func(fl validator.FieldLevel) bool {
		return renderFnPattern.MatchString(fl.Field().String())
	})
	return v
}()

// Config holds all tunable parameters for the SSR engine.
// The struct is designed to be loaded once at startup, validated, and then
// shared across goroutines as a read-only value.
type Config struct {
	// BundlePath is the filesystem path of the JavaScript SSR bundle.
	BundlePath string `json:"bundle_path" validate:"required"`

	// PoolSize is the number of render-worker OS threads to run.
	PoolSize int `json:"pool_size" validate:"gt=0"`

	// QueueCapacity bounds the pool's pending-request channel.
	QueueCapacity int `json:"queue_capacity" validate:"gt=0"`

	// PinThreads requests CPU-core pinning for each worker (Linux only).
	PinThreads bool `json:"pin_threads"`

	// CacheSize is the cold-cache capacity, in entries.
	CacheSize int `json:"cache_size" validate:"gt=0"`

	// CacheTTL is the render cache's time-to-live; zero disables expiry.
	CacheTTL time.Duration `json:"cache_ttl"`

	// RequestTimeout bounds how long a render waits to enqueue before
	// failing with a Timeout error; zero disables the timeout.
	RequestTimeout time.Duration `json:"request_timeout"`

	// RenderFunction is the name of the global JS render function,
	// optionally dotted (e.g. "module.renderPage").
	RenderFunction string `json:"render_function" validate:"required,renderfn"`

	// CoalesceMisses, when true, collapses concurrent cache misses for the
	// same URL and data payload into a single render via singleflight rather than letting
	// every caller dispatch its own worker request.
	CoalesceMisses bool `json:"coalesce_misses"`
}

// LoadConfig reads a JSON file at filename, deserializes it into a Config
// seeded with DefaultConfig's values, and validates the result.
func LoadConfig(filename string) (*Config, error) {
	f, err := os.Open(filename) // #nosec G304 -- filename is caller-provided config path
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", filename, err)
	}
	defer f.Close()

	cfg := DefaultConfig()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields() // catch typos in config files early
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", filename, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg against the engine's configuration invariants,
// returning an *enginerr.Error of kind Config on the first violation.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return newConfigError(err)
	}
	return nil
}

// DefaultConfig returns a *Config pre-filled with production-sensible
// defaults. Callers are free to mutate the returned struct before validating
// it; each call returns a fresh independent copy.
func DefaultConfig() *Config {
	return &Config{
		BundlePath:     "ssr-bundle.js",
		PoolSize:       4,
		QueueCapacity:  512,
		PinThreads:     false,
		CacheSize:      300,
		CacheTTL:       5 * time.Minute,
		RequestTimeout: 30 * time.Second,
		RenderFunction: "renderPage",
		CoalesceMisses: false,
	}
}

func newConfigError(err error) error {
	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return enginerr.New(enginerr.Config, "config.Validate",
			fmt.Errorf("field %s failed %q validation (got %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return enginerr.New(enginerr.Config, "config.Validate", err)
}
