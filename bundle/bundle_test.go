package bundle_test

import (
	"testing"

	"github.com/firasghr/ssrengine/bundle"
)

// The bundle is a process-wide, load-once singleton (mirroring the Rust
// reference implementation's OnceLock design), so these cases share state and must run as one ordered
// sequence rather than independent Test functions.
func TestBundleLifecycle(t *testing.T) {
	if bundle.IsLoaded() {
		t.Fatal("expected bundle to be unloaded at the start of the test binary")
	}

	t.Run("SourcePanicsBeforeInit", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatal("expected Source to panic before the bundle is initialized")
			}
		}()
		bundle.Source()
	})

	t.Run("FromStringInitializes", func(t *testing.T) {
		if err := bundle.FromString("function renderPage() { return '<html></html>'; }"); err != nil {
			t.Fatalf("unexpected error on first FromString: %v", err)
		}
		if !bundle.IsLoaded() {
			t.Fatal("expected IsLoaded to be true after FromString")
		}
		if got := bundle.Source(); got == "" {
			t.Fatal("expected non-empty source after FromString")
		}
	})

	t.Run("SecondInitFails", func(t *testing.T) {
		if err := bundle.FromString("something else"); err == nil {
			t.Fatal("expected second FromString call to fail")
		}
		if err := bundle.Load("/nonexistent/path.js"); err == nil {
			t.Fatal("expected Load to fail once the bundle is already initialized")
		}
	})

	t.Run("PolyfillDefaultsEmpty", func(t *testing.T) {
		if got := bundle.Polyfill(); got != "" {
			t.Fatalf("expected no polyfill before SetPolyfill, got %q", got)
		}
		bundle.SetPolyfill("globalThis.console = globalThis.console || {};")
		if got := bundle.Polyfill(); got == "" {
			t.Fatal("expected polyfill to be set")
		}
	})
}
