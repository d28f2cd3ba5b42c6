// Package jsruntime provides one worker-confined JavaScript execution
// environment for rendering pages: a goja VM plus event loop with the
// process bundle evaluated once, grounded in the same "thread gets its own
// isolate" design as the reference renderer, but evaluating Promise-returning
// render functions instead of assuming a pre-resolved return value.
package jsruntime

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/eventloop"

	"github.com/firasghr/ssrengine/bundle"
	"github.com/firasghr/ssrengine/enginerr"
)

// Runtime is one isolated JS execution environment. It must never be used
// from more than one goroutine at a time; each workerpool worker goroutine
// owns exactly one for its whole lifetime.
type Runtime struct {
	loop *eventloop.EventLoop
}

// New creates a Runtime, evaluates the optional polyfill prelude and the
// process bundle into it, and returns it ready to render. bundle.Load or
// bundle.FromString must have already succeeded for this process.
func New() (*Runtime, error) {
	loop := eventloop.NewEventLoop()

	var initErr error
	loop.Run(func(vm *goja.Runtime) {
		console.Enable(vm)

		if p := bundle.Polyfill(); p != "" {
			if _, err := vm.RunString(p); err != nil {
				initErr = enginerr.New(enginerr.V8Init, "jsruntime.New", fmt.Errorf("polyfill: %w", err))
				return
			}
		}

		if _, err := vm.RunString(bundle.Source()); err != nil {
			initErr = enginerr.New(enginerr.V8Init, "jsruntime.New", err)
		}
	})
	if initErr != nil {
		loop.Stop()
		return nil, initErr
	}

	return &Runtime{loop: loop}, nil
}

// Close stops the runtime's event loop. The Runtime must not be used again
// afterward.
func (r *Runtime) Close() {
	r.loop.Stop()
}

// Render calls globalThis.<renderFn>(url, data) in the runtime, blocks until
// any promise it returns settles, and returns the resolved HTML.
//
// data must be either "" (treated as "{}") or a JSON object literal; it is
// spliced directly into the generated call expression so render functions
// that expect a parsed object see one without an extra JSON.parse round
// trip.
func (r *Runtime) Render(renderFn, url, data string) (string, error) {
	if data == "" {
		data = "{}"
	}
	script := buildRenderScript(renderFn, url, data)

	var (
		promise *goja.Promise
		runErr  error
	)
	r.loop.Run(func(vm *goja.Runtime) {
		v, err := vm.RunString(script)
		if err != nil {
			runErr = enginerr.New(enginerr.JsExecution, "jsruntime.Render", err)
			return
		}
		p, ok := v.Export().(*goja.Promise)
		if !ok {
			runErr = enginerr.New(enginerr.JsExecution, "jsruntime.Render",
				fmt.Errorf("render function globalThis.%s did not return a promise", renderFn))
			return
		}
		promise = p
	})
	if runErr != nil {
		return "", runErr
	}

	switch promise.State() {
	case goja.PromiseStateFulfilled:
		res := promise.Result()
		if res == nil || goja.IsUndefined(res) {
			return "", enginerr.New(enginerr.JsExecution, "jsruntime.Render",
				fmt.Errorf("render function globalThis.%s resolved with no value", renderFn))
		}
		s, ok := res.Export().(string)
		if !ok {
			return "", enginerr.New(enginerr.JsExecution, "jsruntime.Render",
				fmt.Errorf("render function globalThis.%s resolved with a non-string value (%T)", renderFn, res.Export()))
		}
		return s, nil
	case goja.PromiseStateRejected:
		return "", enginerr.New(enginerr.JsExecution, "jsruntime.Render",
			fmt.Errorf("render function globalThis.%s rejected: %v", renderFn, promise.Result()))
	default:
		return "", enginerr.New(enginerr.JsExecution, "jsruntime.Render",
			fmt.Errorf("render function globalThis.%s's promise never settled", renderFn))
	}
}

// buildRenderScript wraps the call in its own try/catch, per spec: a render
// function that throws produces an error HTML page rather than propagating a
// JS exception out to Go. A missing render function is detected inside the
// try, so it also yields an error page. Only failures the catch can't see (a
// script that fails to run, a non-promise, non-string or undefined result)
// surface as Go errors from Render.
func buildRenderScript(renderFn, url, data string) string {
	escapedURL := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(url)
	return fmt.Sprintf(`(async function() {
	try {
		if (typeof globalThis.%s !== "function") {
			throw new Error("render function globalThis.%s not found");
		}
		return await globalThis.%s("%s", %s);
	} catch (error) {
		var detail = (error && (error.stack || error.message)) || String(error);
		return "<html><body><h1>SSR Error</h1><pre>" + detail + "</pre></body></html>";
	}
})()`, renderFn, renderFn, renderFn, escapedURL, data)
}
