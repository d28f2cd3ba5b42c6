// Package enginerr defines the flat error taxonomy shared by every ssrengine
// component. Errors are tagged by Kind rather than organised into a type
// hierarchy, so callers can branch on a single field instead of a chain of
// type assertions.
package enginerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error. Kinds are flat by design: a render either failed
// for one of these reasons or it didn't.
type Kind string

const (
	// BundleLoad indicates the JS bundle could not be read or parsed, or that
	// a second bundle.Load or bundle.FromString call was attempted.
	BundleLoad Kind = "bundle_load"

	// V8Init indicates JS runtime construction failed inside a worker.
	V8Init Kind = "v8_init"

	// JsExecution indicates the render function threw, returned a
	// non-string result, or its worker crashed mid-render.
	JsExecution Kind = "js_execution"

	// Timeout indicates the enqueue deadline was exceeded before the pool
	// accepted the request.
	Timeout Kind = "timeout"

	// PoolFull indicates the worker pool is shutting down or its queue is
	// closed.
	PoolFull Kind = "pool_full"

	// Config indicates invalid configuration was supplied at build time.
	Config Kind = "config"

	// BadData indicates the data_json payload is not valid JSON.
	BadData Kind = "bad_data"

	// Io wraps filesystem errors encountered while loading the bundle.
	Io Kind = "io"
)

// Error is the concrete error type returned by the engine, pool, runtime,
// bundle and config-validation APIs.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ssrengine: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("ssrengine: %s: %s", e.Op, e.Kind)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, enginerr.Timeout) style checks via New(kind, "", nil).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New builds an *Error of the given kind. op identifies the operation that
// failed (e.g. "engine.Render"); cause may be nil.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Sentinel returns a bare *Error of kind k with no op/cause, suitable for use
// as a comparison target with errors.Is.
func Sentinel(k Kind) *Error { return &Error{Kind: k} }
