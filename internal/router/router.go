// Package router maps operator action identifiers to backend mutations.
//
// The status engine only names actions; this package is the central
// decision point for what each action does to the source of record. An
// action either appends a stage event to the event log or patches the
// story snapshot.
//
// Key types:
//   - [Router] - action → [Mutation] table
//   - [Mutation] - one backend change
package router

import (
	"errors"
	"time"

	"storyflow/internal/engine"
	"storyflow/internal/pipeline"
)

// Sentinel errors for action routing.
var (
	// ErrUnknownAction indicates the action identifier is not part of the
	// vocabulary. Callers should report this to the operator; it usually
	// means a typo or a stale client.
	ErrUnknownAction = errors.New("unknown action")

	// ErrWrongStage indicates the action is bound to a different stage
	// than the one it was requested for.
	ErrWrongStage = errors.New("action does not apply to stage")
)

// Router routes action identifiers to mutations.
type Router struct {
	mutations map[engine.ActionID]Mutation
}

// NewRouter creates a [Router] with the default action table:
//   - retry-step, skip-step, cancel-step → retried, skipped, cancelled event on the requested stage
//   - request-changes → reset event on review
//   - defer-triage → progress event on triage
//   - approve-triage, reject-triage → triage decision patch
//   - start-deliberation → deliberation phase patch
//   - start-implementation → agent run patch
//   - merge-pr → merged flag patch
//   - approve-deploy → deploy approval patch
//
// Gate actions that start a stage patch the snapshot rather than append a
// started event: the stage is awaiting approval, not pending, so the
// snapshot is the only source the next projection will act on.
func NewRouter() *Router {
	return &Router{mutations: map[engine.ActionID]Mutation{
		engine.ActionRetryStep:  appendEvent(engine.ActionRetryStep, "", engine.EventRetried, ""),
		engine.ActionSkipStep:   appendEvent(engine.ActionSkipStep, "", engine.EventSkipped, "Skipped by operator"),
		engine.ActionCancelStep: appendEvent(engine.ActionCancelStep, "", engine.EventCancelled, "Cancelled by operator"),

		engine.ActionRequestChanges: appendEvent(engine.ActionRequestChanges, pipeline.StageReview, engine.EventReset, ""),
		engine.ActionDeferTriage:    appendEvent(engine.ActionDeferTriage, pipeline.StageTriage, engine.EventProgress, "Deferred"),

		engine.ActionApproveTriage: patch(engine.ActionApproveTriage, pipeline.StageTriage, func(s *engine.Snapshot, _ time.Time) {
			s.Triage = engine.TriageApproved
		}),
		engine.ActionRejectTriage: patch(engine.ActionRejectTriage, pipeline.StageTriage, func(s *engine.Snapshot, _ time.Time) {
			s.Triage = engine.TriageRejected
		}),
		engine.ActionStartDeliberation: patch(engine.ActionStartDeliberation, pipeline.StageDeliberation, func(s *engine.Snapshot, now time.Time) {
			s.Deliberation = engine.PhaseProposing
			startStage(s, pipeline.StageDeliberation, now)
		}),
		engine.ActionStartImplementation: patch(engine.ActionStartImplementation, pipeline.StageImplement, func(s *engine.Snapshot, now time.Time) {
			s.AgentRun = engine.AgentRunRunning
			startStage(s, pipeline.StageImplement, now)
		}),
		engine.ActionMergePR: patch(engine.ActionMergePR, pipeline.StageReview, func(s *engine.Snapshot, _ time.Time) {
			s.PRMerged = true
		}),
		engine.ActionApproveDeploy: patch(engine.ActionApproveDeploy, pipeline.StageDeploy, func(s *engine.Snapshot, now time.Time) {
			s.DeployApproved = true
			startStage(s, pipeline.StageDeploy, now)
		}),
	}}
}

// Route returns the mutation for an action requested on a stage.
//
// Returns [ErrUnknownAction] for identifiers outside the vocabulary and
// [ErrWrongStage] when the action is bound to another stage. The returned
// mutation's Stage is always set.
func (r *Router) Route(action engine.ActionID, stage pipeline.StageID) (Mutation, error) {
	m, ok := r.mutations[action]
	if !ok {
		return Mutation{}, ErrUnknownAction
	}
	if m.Stage == "" {
		m.Stage = stage
	} else if stage != "" && m.Stage != stage {
		return Mutation{}, ErrWrongStage
	}
	return m, nil
}

// Actions returns the identifiers the router knows, in vocabulary order.
func (r *Router) Actions() []engine.ActionID {
	var out []engine.ActionID
	for _, id := range engine.Actions() {
		if _, ok := r.mutations[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
