// Package bundle owns the process-wide JavaScript SSR bundle: the compiled
// render code every worker's runtime evaluates once at startup. Exactly one
// bundle exists per process, loaded once and shared read-only thereafter.
package bundle

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/firasghr/ssrengine/enginerr"
)

// Polyfill is an optional prelude evaluated immediately before the bundle
// itself, for environments (console, timers, etc.) the bundle's author
// assumed would already exist in a browser-like globalThis.
var polyfill atomic.Pointer[string]

var (
	source   atomic.Pointer[string]
	once     sync.Once
	loadedAt atomic.Int64
)

// Load reads path and stores its contents as the process bundle. It may be
// called exactly once per process; subsequent calls (from this function or
// FromString) return enginerr.BundleLoad without replacing the stored bundle.
func Load(path string) error {
	var loadErr error
	called := false
	once.Do(func() {
		called = true
		b, err := os.ReadFile(path) // #nosec G304 -- path is an operator-supplied config value
		if err != nil {
			loadErr = enginerr.New(enginerr.BundleLoad, "bundle.Load", err)
			return
		}
		s := string(b)
		source.Store(&s)
		loadedAt.Store(time.Now().UnixNano())
	})
	if !called {
		return enginerr.New(enginerr.BundleLoad, "bundle.Load", errAlreadyInitialized)
	}
	return loadErr
}

// FromString stores code as the process bundle directly, for callers that
// embed or otherwise assemble the bundle themselves rather than reading it
// from disk. Like Load, it may only succeed once per process.
func FromString(code string) error {
	var err error
	called := false
	once.Do(func() {
		called = true
		source.Store(&code)
		loadedAt.Store(time.Now().UnixNano())
	})
	if !called {
		err = enginerr.New(enginerr.BundleLoad, "bundle.FromString", errAlreadyInitialized)
	}
	return err
}

// SetPolyfill installs JavaScript evaluated before the bundle on every worker
// runtime's one-time initialization. Like the bundle itself, it is meant to be
// set once during startup, before any runtime has initialized; it is not
// synchronized against concurrent runtime creation.
func SetPolyfill(code string) {
	polyfill.Store(&code)
}

// Polyfill returns the currently installed polyfill prelude, or "" if none
// was set.
func Polyfill() string {
	if p := polyfill.Load(); p != nil {
		return *p
	}
	return ""
}

// Source returns the process bundle's JavaScript source.
//
// Panics if called before Load or FromString has successfully initialized
// the bundle — there is no sensible fallback, and every caller of Source is
// on a worker startup path where failing fast beats rendering nothing.
func Source() string {
	s := source.Load()
	if s == nil {
		panic("bundle: Source called before Load or FromString initialized the bundle")
	}
	return *s
}

// IsLoaded reports whether the bundle has been initialized.
func IsLoaded() bool {
	return source.Load() != nil
}

// Size returns the byte length of the loaded bundle source, or 0 if the
// bundle has not been initialized.
func Size() int {
	s := source.Load()
	if s == nil {
		return 0
	}
	return len(*s)
}

// LoadedAt returns the time the bundle finished loading, or the zero Time if
// it has not been initialized.
func LoadedAt() time.Time {
	ns := loadedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

var errAlreadyInitialized = bundleAlreadyInitializedError{}

type bundleAlreadyInitializedError struct{}

func (bundleAlreadyInitializedError) Error() string { return "bundle already initialized" }
