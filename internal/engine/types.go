package engine

import (
	"time"

	"storyflow/internal/pipeline"
	"storyflow/internal/status"
)

// TriageDecision is the intake decision recorded for a story.
type TriageDecision string

const (
	TriageNone     TriageDecision = ""
	TriageApproved TriageDecision = "approved"
	TriageRejected TriageDecision = "rejected"
	TriageQueued   TriageDecision = "queued"
)

// DeliberationPhase is the phase of the deliberation sub-process.
type DeliberationPhase string

const (
	PhaseNone      DeliberationPhase = ""
	PhaseProposing DeliberationPhase = "proposing"
	PhaseDebating  DeliberationPhase = "debating"
	PhaseVoting    DeliberationPhase = "voting"
	PhaseDecided   DeliberationPhase = "decided"
	PhaseFailed    DeliberationPhase = "failed"
)

// deliberationLadder is the canonical phase order used to derive substeps.
var deliberationLadder = []DeliberationPhase{PhaseProposing, PhaseDebating, PhaseVoting, PhaseDecided}

// AgentRunStatus is the status of the automated implementation run.
type AgentRunStatus string

const (
	AgentRunNone      AgentRunStatus = ""
	AgentRunQueued    AgentRunStatus = "queued"
	AgentRunRunning   AgentRunStatus = "running"
	AgentRunSucceeded AgentRunStatus = "succeeded"
	AgentRunFailed    AgentRunStatus = "failed"
)

// SuiteResult is the result of a single named test suite.
type SuiteResult string

const (
	SuiteUnknown SuiteResult = ""
	SuiteRunning SuiteResult = "running"
	SuitePassed  SuiteResult = "passed"
	SuiteFailed  SuiteResult = "failed"
)

// Snapshot is the current known state of one story, as reported by the
// backend of record. The engine only reads it.
//
// Zero values are the most permissive defaults: a missing flag is treated as
// not-yet-true, a missing phase as not started.
type Snapshot struct {
	StoryID  string
	Template string

	Triage TriageDecision
	EpicID string

	Deliberation DeliberationPhase
	AgentRun     AgentRunStatus

	PRNumber int
	PRMerged bool

	// TestsPass is nil while the overall test result is unknown.
	TestsPass *bool
	E2E       SuiteResult
	Unit      SuiteResult
	UI        SuiteResult

	// DeployApproved records that an operator released the deploy gate.
	DeployApproved bool
	Deployed       bool
	Released       bool

	ReleaseNotes bool
	Notified     bool
	DocsUpdated  bool

	// CurrentStage is the raw id of the stage the backend reports as
	// executing, if any. Legacy spellings are accepted.
	CurrentStage          string
	CurrentStageStartedAt time.Time

	// TimeoutOverrides replaces the catalog timeout for individual stages.
	// Non-positive values are ignored.
	TimeoutOverrides map[pipeline.StageID]time.Duration
}

// EventKind is the kind of an event-log entry.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventCancelled EventKind = "cancelled"
	EventSkipped   EventKind = "skipped"
	EventRetried   EventKind = "retried"
	EventReset     EventKind = "reset"
)

// IsValid reports whether k is a known event kind.
func (k EventKind) IsValid() bool {
	switch k {
	case EventStarted, EventProgress, EventCompleted, EventFailed,
		EventCancelled, EventSkipped, EventRetried, EventReset:
		return true
	}
	return false
}

// Event is an immutable, append-only event log entry.
type Event struct {
	ID string

	// StageID is the raw target stage id; legacy spellings are resolved
	// through [pipeline.Canonical] during replay.
	StageID string

	Kind EventKind

	// Detail is free-form text or a JSON object payload; see [DetailText].
	Detail string

	Actor     string
	CreatedAt time.Time
}

// Substep is a named sub-item of a stage with its own status.
type Substep struct {
	Label  string
	Status status.Status
}

// StageView is the engine's per-stage output. It is recomputed on every call
// and never persisted.
type StageView struct {
	ID    pipeline.StageID
	Label string
	Actor pipeline.ActorClass

	Status status.Status
	Detail string

	Substeps []Substep

	// StartedAt is zero when the stage start is unknown.
	StartedAt time.Time
	Elapsed   time.Duration
	Timeout   time.Duration

	Actions []Action

	// pinned marks actions attached by an override event; they take
	// precedence over the gate table.
	pinned bool
}

// HasAction reports whether the view offers the given action.
func (v StageView) HasAction(id ActionID) bool {
	for _, a := range v.Actions {
		if a.ID == id {
			return true
		}
	}
	return false
}

// clone returns a deep copy so transformation steps never share slices.
func (v StageView) clone() StageView {
	if v.Substeps != nil {
		subs := make([]Substep, len(v.Substeps))
		copy(subs, v.Substeps)
		v.Substeps = subs
	}
	if v.Actions != nil {
		acts := make([]Action, len(v.Actions))
		copy(acts, v.Actions)
		v.Actions = acts
	}
	return v
}

func cloneViews(views []StageView) []StageView {
	out := make([]StageView, len(views))
	for i, v := range views {
		out[i] = v.clone()
	}
	return out
}
