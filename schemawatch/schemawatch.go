// Package schemawatch detects structural drift in the data_json payload
// passed to a render function, purely for observability: it never rejects
// a render, it only logs when a payload's shape changes after the first one
// for a given render function.
//
// Adapted from the teacher's API-response schema-snapshot validator: the
// reference package keeps one baseline schema per process; this package
// keeps one baseline per render function, since an engine that serves
// multiple render functions (or will, in a future config) must not conflate
// their payload shapes.
package schemawatch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MismatchKind classifies the type of schema difference detected.
type MismatchKind string

const (
	// MismatchKindMissing indicates a field present in the baseline is absent
	// in the current payload.
	MismatchKindMissing MismatchKind = "MISSING_FIELD"

	// MismatchKindAdded indicates a field not present in the baseline was
	// added to the current payload.
	MismatchKindAdded MismatchKind = "ADDED_FIELD"

	// MismatchKindTypeChange indicates a field exists in both but its JSON
	// type changed (e.g. "number" → "string").
	MismatchKindTypeChange MismatchKind = "TYPE_CHANGE"
)

// Mismatch describes a single structural difference between a render
// function's baseline payload shape and a later one.
type Mismatch struct {
	Kind         MismatchKind
	Field        string
	BaselineType string
	CurrentType  string
}

// String returns a human-readable description suitable for log output.
func (m Mismatch) String() string {
	switch m.Kind {
	case MismatchKindMissing:
		return fmt.Sprintf("data_json drift [%s] field %q missing (was %s)", m.Kind, m.Field, m.BaselineType)
	case MismatchKindAdded:
		return fmt.Sprintf("data_json drift [%s] field %q added (type %s)", m.Kind, m.Field, m.CurrentType)
	case MismatchKindTypeChange:
		return fmt.Sprintf("data_json drift [%s] field %q type changed %s → %s", m.Kind, m.Field, m.BaselineType, m.CurrentType)
	default:
		return fmt.Sprintf("data_json drift [%s] field %q", m.Kind, m.Field)
	}
}

// shape maps dot-separated field paths to their JSON type names.
type shape map[string]string

// Watcher learns the field-shape of the first data_json payload seen per
// render function and flags structural drift in subsequent payloads for
// that same render function. Safe for concurrent use.
type Watcher struct {
	mu        sync.RWMutex
	baselines map[string]shape
}

// NewWatcher creates an empty Watcher. The first Check call for a given
// render function establishes its baseline and always returns no mismatches.
func NewWatcher() *Watcher {
	return &Watcher{baselines: make(map[string]shape)}
}

// Check compares dataJSON's field shape against the baseline recorded for
// renderFn, returning any mismatches. If renderFn has no baseline yet,
// dataJSON's shape becomes the baseline and Check returns no mismatches.
//
// A non-object payload (e.g. "{}"  parses fine but a bare JSON array or
// scalar does not) is silently ignored: schema drift detection only applies
// to object-shaped payloads, and the spec never requires data_json to be an
// object.
func (w *Watcher) Check(renderFn string, dataJSON string) []Mismatch {
	current, ok := extractShape([]byte(dataJSON))
	if !ok {
		return nil
	}

	w.mu.Lock()
	baseline, known := w.baselines[renderFn]
	if !known {
		w.baselines[renderFn] = current
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	return diffShapes(baseline, current)
}

// Reset clears the baseline for renderFn, so the next Check call relearns it.
func (w *Watcher) Reset(renderFn string) {
	w.mu.Lock()
	delete(w.baselines, renderFn)
	w.mu.Unlock()
}

// extractShape parses data as a JSON object and returns its flattened field
// shape. ok is false if data does not parse as a JSON object (including
// arrays, scalars, and invalid JSON).
func extractShape(data []byte) (s shape, ok bool) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false
	}
	obj, isObj := raw.(map[string]interface{})
	if !isObj {
		return nil, false
	}
	s = make(shape)
	flattenShape(obj, "", s)
	return s, true
}

func flattenShape(obj map[string]interface{}, prefix string, s shape) {
	for k, v := range obj {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			s[path] = "object"
			flattenShape(val, path, s)
		case []interface{}:
			s[path] = "array"
		case string:
			s[path] = "string"
		case float64:
			s[path] = "number"
		case bool:
			s[path] = "bool"
		case nil:
			s[path] = "null"
		default:
			s[path] = "unknown"
		}
	}
}

func diffShapes(baseline, current shape) []Mismatch {
	var mismatches []Mismatch

	for field, bType := range baseline {
		cType, ok := current[field]
		if !ok {
			mismatches = append(mismatches, Mismatch{
				Kind:         MismatchKindMissing,
				Field:        field,
				BaselineType: bType,
			})
			continue
		}
		if cType != bType {
			mismatches = append(mismatches, Mismatch{
				Kind:         MismatchKindTypeChange,
				Field:        field,
				BaselineType: bType,
				CurrentType:  cType,
			})
		}
	}

	for field, cType := range current {
		if _, ok := baseline[field]; !ok {
			mismatches = append(mismatches, Mismatch{
				Kind:        MismatchKindAdded,
				Field:       field,
				CurrentType: cType,
			})
		}
	}

	sort.Slice(mismatches, func(i, j int) bool {
		if mismatches[i].Field != mismatches[j].Field {
			return mismatches[i].Field < mismatches[j].Field
		}
		return string(mismatches[i].Kind) < string(mismatches[j].Kind)
	})
	return mismatches
}

// FormatMismatches produces a multi-line log-ready string from a list of
// mismatches. Returns an empty string if mismatches is empty.
func FormatMismatches(mismatches []Mismatch) string {
	if len(mismatches) == 0 {
		return ""
	}
	lines := make([]string, len(mismatches))
	for i, m := range mismatches {
		lines[i] = m.String()
	}
	return strings.Join(lines, "\n")
}
