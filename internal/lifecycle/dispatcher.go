package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storyflow/internal/engine"
	"storyflow/internal/pipeline"
	"storyflow/internal/router"
)

// ErrUnknownStage indicates the requested stage id is neither canonical nor
// a known legacy alias.
var ErrUnknownStage = errors.New("unknown stage")

// ErrNoBackend indicates the mutation targets a backend the dispatcher was
// not given.
var ErrNoBackend = errors.New("no backend configured for mutation")

// EventAppender appends a stage event to a story's event log.
type EventAppender interface {
	Append(ctx context.Context, storyID string, ev engine.Event) (engine.Event, error)
}

// SnapshotPatcher applies an in-place edit to a story snapshot.
type SnapshotPatcher interface {
	Patch(storyID string, fn func(*engine.Snapshot)) error
}

// Request is an operator action on one stage of a story.
type Request struct {
	StoryID string
	Stage   string
	Action  string

	// Actor is recorded on appended events. Defaults to "operator".
	Actor string

	// Detail overrides the mutation's default event detail.
	Detail string
}

// Result describes the mutation a dispatched request performed.
type Result struct {
	Mutation router.Mutation

	// Event is the appended event for append mutations, nil otherwise.
	Event *engine.Event
}

// Dispatcher maps operator actions to backend mutations.
//
// Dispatch is fire-and-forget: it does not check the action against the
// stage's current permissible set and does not recompute views. Callers
// project again to observe the effect.
type Dispatcher struct {
	router    *router.Router
	events    EventAppender
	snapshots SnapshotPatcher
	stories   SnapshotReader
	clock     Clock
}

// NewDispatcher creates a [Dispatcher] using the default router table.
// Either backend may be nil; mutations targeting it fail with [ErrNoBackend].
func NewDispatcher(events EventAppender, snapshots SnapshotPatcher) *Dispatcher {
	return &Dispatcher{
		router:    router.NewRouter(),
		events:    events,
		snapshots: snapshots,
		clock:     time.Now,
	}
}

// SetRouter replaces the action table.
func (d *Dispatcher) SetRouter(r *router.Router) {
	if r != nil {
		d.router = r
	}
}

// SetStoryReader makes event mutations check that the story exists before
// appending, so actions on unknown stories fail instead of leaving orphan
// events. Snapshot patches always check.
func (d *Dispatcher) SetStoryReader(r SnapshotReader) {
	d.stories = r
}

// SetClock replaces the time source used to stamp events and started stages.
func (d *Dispatcher) SetClock(c Clock) {
	if c != nil {
		d.clock = c
	}
}

// Dispatch validates the request and performs its mutation.
//
// The stage may be a legacy alias. Returns [ErrUnknownStage] for unknown
// stages and the router's sentinel errors for unknown or misdirected actions.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	stage, ok := pipeline.Canonical(req.Stage)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownStage, req.Stage)
	}

	action := engine.ActionID(strings.ToLower(strings.TrimSpace(req.Action)))
	m, err := d.router.Route(action, stage)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %q on %s", err, req.Action, stage)
	}

	switch m.Kind {
	case router.MutationAppendEvent:
		if d.events == nil {
			return Result{}, ErrNoBackend
		}
		if d.stories != nil {
			if _, err := d.stories.Get(req.StoryID); err != nil {
				return Result{}, fmt.Errorf("failed to dispatch %s: %w", action, err)
			}
		}
		detail := m.Detail
		if req.Detail != "" {
			detail = req.Detail
		}
		actor := req.Actor
		if actor == "" {
			actor = "operator"
		}
		ev, err := d.events.Append(ctx, req.StoryID, engine.Event{
			StageID:   string(m.Stage),
			Kind:      m.Event,
			Detail:    detail,
			Actor:     actor,
			CreatedAt: d.clock().UTC(),
		})
		if err != nil {
			return Result{}, fmt.Errorf("failed to dispatch %s: %w", action, err)
		}
		return Result{Mutation: m, Event: &ev}, nil

	case router.MutationPatchSnapshot:
		if d.snapshots == nil {
			return Result{}, ErrNoBackend
		}
		now := d.clock()
		apply := func(s *engine.Snapshot) { m.Patch(s, now) }
		if err := d.snapshots.Patch(req.StoryID, apply); err != nil {
			return Result{}, fmt.Errorf("failed to dispatch %s: %w", action, err)
		}
		return Result{Mutation: m}, nil
	}

	return Result{}, fmt.Errorf("%w: %s", ErrNoBackend, m.Kind)
}
