package jsruntime_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/firasghr/ssrengine/bundle"
	"github.com/firasghr/ssrengine/jsruntime"
)

// The process bundle is a load-once singleton shared by every Runtime (each
// Runtime gets its own VM, but all VMs evaluate the same bundle source), so
// every behavior these tests need lives in one shared bundle under distinct
// function names rather than one bundle per test.
const sharedBundle = `
	async function renderPage(url, data) {
		if (data && data.title) {
			return "<h1>" + data.title + "</h1>";
		}
		return "<h1>" + url + "</h1>";
	}

	async function renderThrows(url, data) {
		throw new Error("boom");
	}

	async function renderNonString(url, data) {
		return { html: "<h1>oops</h1>" };
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

func newTestRuntime(t *testing.T) *jsruntime.Runtime {
	t.Helper()
	initBundle(t)
	r, err := jsruntime.New()
	if err != nil {
		t.Fatalf("jsruntime.New: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestRuntime_RenderResolvesAsyncFunction(t *testing.T) {
	r := newTestRuntime(t)

	html, err := r.Render("renderPage", "/home", "{}")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if html != "<h1>/home</h1>" {
		t.Fatalf("unexpected html: %q", html)
	}
}

func TestRuntime_RenderUsesDataArgument(t *testing.T) {
	r := newTestRuntime(t)

	html, err := r.Render("renderPage", "/home", `{"title":"hello"}`)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if html != "<h1>hello</h1>" {
		t.Fatalf("unexpected html: %q", html)
	}
}

func TestRuntime_RenderMissingFunctionYieldsErrorPage(t *testing.T) {
	r := newTestRuntime(t)

	html, err := r.Render("thisFunctionDoesNotExist", "/home", "{}")
	if err != nil {
		t.Fatalf("expected the missing-function case to be caught in JS, got Go error: %v", err)
	}
	if !strings.Contains(html, "not found") {
		t.Fatalf("expected error page to mention 'not found', got: %q", html)
	}
}

func TestRuntime_RenderThrowYieldsErrorPageNotGoError(t *testing.T) {
	r := newTestRuntime(t)

	html, err := r.Render("renderThrows", "/home", "{}")
	if err != nil {
		t.Fatalf("expected a thrown JS error to be caught and rendered, got Go error: %v", err)
	}
	if !strings.Contains(html, "boom") {
		t.Fatalf("expected error page to contain the thrown message, got: %q", html)
	}
}

func TestRuntime_RenderNonStringResultIsGoError(t *testing.T) {
	r := newTestRuntime(t)

	if _, err := r.Render("renderNonString", "/home", "{}"); err == nil {
		t.Fatal("expected a render function resolving with a non-string value to fail, got nil error")
	}
}

func TestRuntime_RenderSucceedsAfterPriorThrow(t *testing.T) {
	r := newTestRuntime(t)

	if _, err := r.Render("renderThrows", "/bad", "{}"); err != nil {
		t.Fatalf("Render: %v", err)
	}

	html, err := r.Render("renderPage", "/good", "{}")
	if err != nil {
		t.Fatalf("Render after a prior throw should still succeed: %v", err)
	}
	if html != "<h1>/good</h1>" {
		t.Fatalf("unexpected html: %q", html)
	}
}
