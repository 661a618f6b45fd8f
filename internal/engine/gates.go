package engine

import (
	"storyflow/internal/pipeline"
	"storyflow/internal/status"
)

// ActionID identifies an operator action. Callers map identifiers to backend
// mutations; the engine only defines the vocabulary.
type ActionID string

// Action identifiers.
const (
	ActionApproveTriage       ActionID = "approve-triage"
	ActionRejectTriage        ActionID = "reject-triage"
	ActionDeferTriage         ActionID = "defer-triage"
	ActionStartDeliberation   ActionID = "start-deliberation"
	ActionStartImplementation ActionID = "start-implementation"
	ActionMergePR             ActionID = "merge-pr"
	ActionRequestChanges      ActionID = "request-changes"
	ActionApproveDeploy       ActionID = "approve-deploy"
	ActionRetryStep           ActionID = "retry-step"
	ActionSkipStep            ActionID = "skip-step"
	ActionCancelStep          ActionID = "cancel-step"
)

// Action is a permissible operator action with its display label.
type Action struct {
	ID    ActionID
	Label string
}

var actionLabels = map[ActionID]string{
	ActionApproveTriage:       "Approve",
	ActionRejectTriage:        "Reject",
	ActionDeferTriage:         "Defer",
	ActionStartDeliberation:   "Start deliberation",
	ActionStartImplementation: "Start implementation",
	ActionMergePR:             "Approve & merge",
	ActionRequestChanges:      "Request changes",
	ActionApproveDeploy:       "Deploy",
	ActionRetryStep:           "Retry",
	ActionSkipStep:            "Skip",
	ActionCancelStep:          "Cancel",
}

// Actions returns every known action identifier.
func Actions() []ActionID {
	return []ActionID{
		ActionApproveTriage, ActionRejectTriage, ActionDeferTriage,
		ActionStartDeliberation, ActionStartImplementation,
		ActionMergePR, ActionRequestChanges, ActionApproveDeploy,
		ActionRetryStep, ActionSkipStep, ActionCancelStep,
	}
}

// Label returns the human-readable label for an action identifier.
func (id ActionID) Label() string {
	if l, ok := actionLabels[id]; ok {
		return l
	}
	return string(id)
}

// IsValid reports whether id is part of the action vocabulary.
func (id ActionID) IsValid() bool {
	_, ok := actionLabels[id]
	return ok
}

func actions(ids ...ActionID) []Action {
	out := make([]Action, len(ids))
	for i, id := range ids {
		out[i] = Action{ID: id, Label: id.Label()}
	}
	return out
}

// recoveryActions is the generic set attached by cancel/fail overrides.
func recoveryActions() []Action {
	return actions(ActionRetryStep, ActionSkipStep)
}

// reviewActions is the approve/reject set attached when review starts.
func reviewActions() []Action {
	return actions(ActionMergePR, ActionRequestChanges)
}

// gateTable is the single stage→status→actions lookup for gated stages.
var gateTable = map[pipeline.StageID]map[status.Status][]ActionID{
	pipeline.StageTriage: {
		status.StatusAwaitingApproval: {ActionApproveTriage, ActionRejectTriage, ActionDeferTriage},
	},
	pipeline.StageDeliberation: {
		status.StatusAwaitingApproval: {ActionStartDeliberation, ActionSkipStep},
	},
	pipeline.StageImplement: {
		status.StatusAwaitingApproval: {ActionStartImplementation, ActionSkipStep},
	},
	pipeline.StageReview: {
		status.StatusAwaitingApproval: {ActionMergePR, ActionRequestChanges},
	},
	pipeline.StageDeploy: {
		status.StatusAwaitingApproval: {ActionApproveDeploy, ActionSkipStep},
	},
}

// GateActions returns the default action set for a stage in the given status
// and actor class, ignoring any override-attached actions.
//
//   - awaiting_approval: the stage's gate actions, or skip when the stage has none
//   - timed_out on an automated stage: cancel, retry, skip
//   - failed on an automated stage: retry, skip
//   - anything else: none
func GateActions(id pipeline.StageID, st status.Status, actor pipeline.ActorClass) []Action {
	switch st {
	case status.StatusAwaitingApproval:
		if ids, ok := gateTable[id][st]; ok {
			return actions(ids...)
		}
		return actions(ActionSkipStep)
	case status.StatusTimedOut:
		if actor.IsAutomated() {
			return actions(ActionCancelStep, ActionRetryStep, ActionSkipStep)
		}
	case status.StatusFailed:
		if actor.IsAutomated() {
			return actions(ActionRetryStep, ActionSkipStep)
		}
	}
	return nil
}

// ResolveGates fills the permissible action set of every view. Actions
// attached by an override event take precedence over the gate table.
func ResolveGates(views []StageView) []StageView {
	out := cloneViews(views)
	for i := range out {
		if out[i].pinned {
			continue
		}
		out[i].Actions = GateActions(out[i].ID, out[i].Status, out[i].Actor)
	}
	return out
}
