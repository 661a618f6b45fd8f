// Package engine computes per-stage lifecycle status for a story.
//
// The engine is a pure function of (snapshot, event log, now). It merges the
// snapshot view of a story with the event log view, enforces the pipeline's
// blocking rule, overlays timeouts, and resolves the operator actions each
// stage permits. It performs no I/O, reads no clock other than the injected
// now, and holds no state between calls, so it is safe to call concurrently.
//
// The computation is a pipeline of independently testable steps, each taking
// a view list and returning a new one:
//
//	Derive → ApplyOverrides → PropagateBlocking → ApplyTimeouts → ResolveGates
//
// Key types:
//   - [Engine] - Binds a [pipeline.Catalog] to the compute pipeline
//   - [Snapshot] - Current known state of a story
//   - [Event] - Append-only event log entry
//   - [StageView] - Per-stage output
//   - [Progress] - Rollup produced by [Summarize]
package engine

import (
	"time"

	"storyflow/internal/pipeline"
)

// Engine computes stage views against a specific step catalog.
type Engine struct {
	catalog *pipeline.Catalog
}

// New creates an [Engine] for the given catalog. A nil catalog uses
// [pipeline.Default].
func New(catalog *pipeline.Catalog) *Engine {
	if catalog == nil {
		catalog = pipeline.Default()
	}
	return &Engine{catalog: catalog}
}

// Catalog returns the engine's step catalog.
func (e *Engine) Catalog() *pipeline.Catalog {
	return e.catalog
}

// Compute returns the ordered stage views for a story.
//
// Compute never fails: any snapshot and event list yields a full view list
// for the snapshot's template. Calling it twice with identical inputs yields
// identical output.
func (e *Engine) Compute(snap Snapshot, events []Event, now time.Time) []StageView {
	views := e.Derive(snap, events)
	views = ApplyOverrides(views, events)
	views = PropagateBlocking(views)
	views = ApplyTimeouts(views, now)
	return ResolveGates(views)
}

var defaultEngine = New(nil)

// Compute runs the default engine over the default catalog.
func Compute(snap Snapshot, events []Event, now time.Time) []StageView {
	return defaultEngine.Compute(snap, events, now)
}
