package router

import (
	"time"

	"storyflow/internal/engine"
	"storyflow/internal/pipeline"
)

// MutationKind says which backend of record a [Mutation] touches.
type MutationKind int

const (
	// MutationAppendEvent appends a stage event to the event log.
	MutationAppendEvent MutationKind = iota

	// MutationPatchSnapshot changes fields of the story snapshot.
	MutationPatchSnapshot
)

// String returns a short name for logs.
func (k MutationKind) String() string {
	switch k {
	case MutationAppendEvent:
		return "append-event"
	case MutationPatchSnapshot:
		return "patch-snapshot"
	default:
		return "unknown"
	}
}

// Mutation is the backend change an action performs.
type Mutation struct {
	Action engine.ActionID
	Kind   MutationKind

	// Stage is the stage the change targets. Actions bound to one stage
	// carry it in the table; generic recovery actions take the requested one.
	Stage pipeline.StageID

	// Event and Detail describe the event to append for MutationAppendEvent.
	Event  engine.EventKind
	Detail string

	// Patch edits the snapshot for MutationPatchSnapshot. now is the
	// dispatch time, used to stamp the stage a patch starts.
	Patch func(s *engine.Snapshot, now time.Time)
}

func appendEvent(action engine.ActionID, stage pipeline.StageID, kind engine.EventKind, detail string) Mutation {
	return Mutation{Action: action, Kind: MutationAppendEvent, Stage: stage, Event: kind, Detail: detail}
}

func patch(action engine.ActionID, stage pipeline.StageID, fn func(*engine.Snapshot, time.Time)) Mutation {
	return Mutation{Action: action, Kind: MutationPatchSnapshot, Stage: stage, Patch: fn}
}

// startStage points the snapshot at the stage that is now executing.
func startStage(s *engine.Snapshot, stage pipeline.StageID, now time.Time) {
	s.CurrentStage = string(stage)
	s.CurrentStageStartedAt = now.UTC()
}
