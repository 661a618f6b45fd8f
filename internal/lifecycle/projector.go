// Package lifecycle connects the status engine to its backends of record.
//
// [Projector] fetches a story's snapshot and event log, injects the current
// time, and returns the computed stage views. [Dispatcher] turns operator
// actions into backend mutations; the next projection reflects them.
//
// Both use small interfaces for their backends so tests can substitute
// in-memory fakes:
//   - [SnapshotReader] and [EventReader] feed the projector
//   - [SnapshotPatcher] and [EventAppender] receive dispatched mutations
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"storyflow/internal/engine"
	"storyflow/internal/pipeline"
)

// DefaultEventLimit caps how many of the most recent events a projection
// replays.
const DefaultEventLimit = 200

// SnapshotReader looks up a story snapshot.
//
// Get returns an error if the story cannot be found or the source is unreadable.
type SnapshotReader interface {
	Get(storyID string) (engine.Snapshot, error)
}

// EventReader lists the most recent events of a story in chronological order.
type EventReader interface {
	ListByStory(ctx context.Context, storyID string, limit int) ([]engine.Event, error)
}

// Clock returns the current time. It is the only clock the engine sees.
type Clock func() time.Time

// Projection is one computed view of a story.
type Projection struct {
	StoryID    string
	Template   string
	Views      []engine.StageView
	Progress   engine.Progress
	ComputedAt time.Time
}

// Projector computes stage views for stories on demand.
//
// Use [NewProjector] to create an instance. The engine defaults to the
// default catalog and the clock to [time.Now].
type Projector struct {
	snapshots  SnapshotReader
	events     EventReader
	engine     *engine.Engine
	clock      Clock
	eventLimit int

	defaultTemplate string
}

// NewProjector creates a [Projector]. events may be nil, in which case
// projections use the snapshot alone.
func NewProjector(snapshots SnapshotReader, events EventReader) *Projector {
	return &Projector{
		snapshots:  snapshots,
		events:     events,
		engine:     engine.New(nil),
		clock:      time.Now,
		eventLimit: DefaultEventLimit,
	}
}

// SetEngine replaces the engine, for example one bound to a catalog with
// custom templates or timeouts.
func (p *Projector) SetEngine(e *engine.Engine) {
	if e != nil {
		p.engine = e
	}
}

// SetClock replaces the time source.
func (p *Projector) SetClock(c Clock) {
	if c != nil {
		p.clock = c
	}
}

// SetEventLimit sets how many recent events are replayed. Non-positive
// values replay the whole log.
func (p *Projector) SetEventLimit(n int) {
	p.eventLimit = n
}

// SetDefaultTemplate names the template used for snapshots that carry none.
func (p *Projector) SetDefaultTemplate(name string) {
	p.defaultTemplate = name
}

// Project computes the current stage views of a story.
//
// Errors come only from the backends; the computation itself cannot fail.
func (p *Projector) Project(ctx context.Context, storyID string) (Projection, error) {
	snap, err := p.snapshots.Get(storyID)
	if err != nil {
		return Projection{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap.Template == "" {
		snap.Template = p.defaultTemplate
	}

	var events []engine.Event
	if p.events != nil {
		events, err = p.events.ListByStory(ctx, storyID, p.eventLimit)
		if err != nil {
			return Projection{}, fmt.Errorf("failed to load events: %w", err)
		}
	}

	now := p.clock()
	views := p.engine.Compute(snap, events, now)

	template := snap.Template
	if !p.engine.Catalog().HasTemplate(template) {
		template = pipeline.TemplateFull
	}

	return Projection{
		StoryID:    storyID,
		Template:   template,
		Views:      views,
		Progress:   engine.Summarize(views),
		ComputedAt: now,
	}, nil
}
