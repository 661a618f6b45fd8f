package engine

import (
	"fmt"
	"time"

	"storyflow/internal/pipeline"
	"storyflow/internal/status"
)

// baseline is the per-stage result of deriving status from a snapshot alone.
type baseline struct {
	status   status.Status
	detail   string
	substeps []Substep
}

// Derive computes the baseline status of every stage in the snapshot's
// template from the snapshot fields alone. Events are consulted only to
// resolve the start time of an active stage when the snapshot does not carry
// one.
//
// Stages excluded from the template are omitted from the result; a rule that
// depends on an excluded stage treats that stage as satisfied.
func (e *Engine) Derive(snap Snapshot, events []Event) []StageView {
	stages := e.catalog.Template(snap.Template)
	included := make(map[pipeline.StageID]bool, len(stages))
	for _, s := range stages {
		included[s.ID] = true
	}

	derived := make(map[pipeline.StageID]baseline, len(stages))
	met := func(id pipeline.StageID) bool {
		if !included[id] {
			return true
		}
		return derived[id].status == status.StatusPassed
	}

	// Rules run in canonical order so later stages can look at earlier results.
	for _, s := range e.catalog.Stages() {
		var b baseline
		switch s.ID {
		case pipeline.StageTriage:
			b = deriveTriage(snap)
		case pipeline.StagePlan:
			b = derivePlan(snap, met(pipeline.StageTriage))
		case pipeline.StageDeliberation:
			b = deriveDeliberation(snap, met(pipeline.StagePlan))
		case pipeline.StageImplement:
			b = deriveImplement(snap, met(pipeline.StageDeliberation))
		case pipeline.StageTest:
			b = deriveTest(snap)
		case pipeline.StageReview:
			b = deriveReview(snap, met(pipeline.StageTest))
		case pipeline.StageDeploy:
			b = deriveDeploy(snap, met(pipeline.StageReview))
		case pipeline.StageRelease:
			b = deriveRelease(snap)
		default:
			b = baseline{status: status.StatusPending}
		}
		derived[s.ID] = b
	}

	current, hasCurrent := pipeline.Canonical(snap.CurrentStage)

	views := make([]StageView, 0, len(stages))
	for _, s := range stages {
		b := derived[s.ID]
		v := StageView{
			ID:       s.ID,
			Label:    s.Label,
			Actor:    s.Actor,
			Status:   b.status,
			Detail:   b.detail,
			Substeps: b.substeps,
			Timeout:  s.Timeout,
		}
		if d, ok := snap.TimeoutOverrides[s.ID]; ok && d > 0 {
			v.Timeout = d
		}
		if v.Status == status.StatusActive {
			if hasCurrent && current == s.ID && !snap.CurrentStageStartedAt.IsZero() {
				v.StartedAt = snap.CurrentStageStartedAt
			} else {
				v.StartedAt = lastStarted(events, s.ID)
			}
		}
		views = append(views, v)
	}
	return views
}

// lastStarted returns the timestamp of the most recent started event for the
// stage, or the zero time.
func lastStarted(events []Event, id pipeline.StageID) time.Time {
	var latest time.Time
	for _, ev := range events {
		if ev.Kind != EventStarted {
			continue
		}
		if sid, ok := pipeline.Canonical(ev.StageID); !ok || sid != id {
			continue
		}
		if !ev.CreatedAt.Before(latest) {
			latest = ev.CreatedAt
		}
	}
	return latest
}

func deriveTriage(snap Snapshot) baseline {
	switch snap.Triage {
	case TriageApproved:
		return baseline{status: status.StatusPassed, detail: "Approved"}
	case TriageRejected:
		return baseline{status: status.StatusFailed, detail: "Rejected"}
	case TriageQueued:
		return baseline{status: status.StatusAwaitingApproval, detail: "Waiting in intake queue"}
	default:
		// Stories that never went through intake are accepted silently.
		return baseline{status: status.StatusPassed, detail: "Accepted"}
	}
}

func derivePlan(snap Snapshot, triagePassed bool) baseline {
	switch {
	case snap.EpicID != "":
		return baseline{status: status.StatusPassed, detail: "Linked to " + snap.EpicID}
	case triagePassed:
		return baseline{status: status.StatusActive, detail: "Planning"}
	default:
		return baseline{status: status.StatusPending}
	}
}

func deriveDeliberation(snap Snapshot, planPassed bool) baseline {
	b := baseline{substeps: ladderSubsteps(snap.Deliberation)}
	switch snap.Deliberation {
	case PhaseProposing:
		b.status, b.detail = status.StatusActive, "Proposing"
	case PhaseDebating:
		b.status, b.detail = status.StatusActive, "Debating"
	case PhaseVoting:
		b.status, b.detail = status.StatusActive, "Voting"
	case PhaseDecided:
		b.status, b.detail = status.StatusPassed, "Decided"
	case PhaseFailed:
		b.status, b.detail = status.StatusFailed, "Deliberation failed"
	default:
		if planPassed {
			b.status, b.detail = status.StatusAwaitingApproval, "Ready for deliberation"
		} else {
			b.status = status.StatusPending
		}
	}
	if b.status == status.StatusPassed {
		b.substeps = settleSubsteps(b.substeps)
	}
	return b
}

var ladderLabels = []string{"Propose", "Debate", "Vote", "Decide"}

// ladderSubsteps marks substeps before the current phase passed, the current
// phase active, and the rest pending. Phases outside the ladder leave every
// substep pending.
func ladderSubsteps(phase DeliberationPhase) []Substep {
	idx := -1
	for i, p := range deliberationLadder {
		if p == phase {
			idx = i
			break
		}
	}

	subs := make([]Substep, len(ladderLabels))
	for i, label := range ladderLabels {
		st := status.StatusPending
		switch {
		case idx < 0:
		case i < idx:
			st = status.StatusPassed
		case i == idx:
			st = status.StatusActive
		}
		subs[i] = Substep{Label: label, Status: st}
	}
	return subs
}

// settleSubsteps returns a copy with every substep passed.
func settleSubsteps(subs []Substep) []Substep {
	if subs == nil {
		return nil
	}
	out := make([]Substep, len(subs))
	for i, s := range subs {
		out[i] = Substep{Label: s.Label, Status: status.StatusPassed}
	}
	return out
}

func deriveImplement(snap Snapshot, deliberationPassed bool) baseline {
	switch {
	case snap.PRNumber > 0:
		return baseline{status: status.StatusPassed, detail: fmt.Sprintf("PR #%d", snap.PRNumber)}
	case snap.AgentRun == AgentRunRunning:
		return baseline{status: status.StatusActive, detail: "Agent running"}
	case snap.AgentRun == AgentRunFailed:
		return baseline{status: status.StatusFailed, detail: "Agent run failed"}
	case deliberationPassed:
		return baseline{status: status.StatusAwaitingApproval, detail: "Ready to implement"}
	default:
		return baseline{status: status.StatusPending}
	}
}

func deriveTest(snap Snapshot) baseline {
	b := baseline{substeps: []Substep{
		{Label: "E2E", Status: suiteStatus(snap.E2E)},
		{Label: "Unit", Status: suiteStatus(snap.Unit)},
		{Label: "UI", Status: suiteStatus(snap.UI)},
	}}
	switch {
	case snap.TestsPass != nil && *snap.TestsPass:
		b.status, b.detail = status.StatusPassed, "All suites passed"
	case snap.TestsPass != nil:
		b.status, b.detail = status.StatusFailed, "Tests failed"
	case snap.PRNumber > 0:
		b.status, b.detail = status.StatusActive, "Running suites"
	default:
		b.status = status.StatusPending
	}
	return b
}

func suiteStatus(r SuiteResult) status.Status {
	switch r {
	case SuitePassed:
		return status.StatusPassed
	case SuiteFailed:
		return status.StatusFailed
	case SuiteRunning:
		return status.StatusActive
	default:
		return status.StatusPending
	}
}

func deriveReview(snap Snapshot, testsPassed bool) baseline {
	switch {
	case snap.PRMerged:
		return baseline{status: status.StatusPassed, detail: "Merged"}
	case testsPassed && snap.PRNumber > 0:
		return baseline{status: status.StatusAwaitingApproval, detail: fmt.Sprintf("PR #%d awaiting review", snap.PRNumber)}
	default:
		return baseline{status: status.StatusPending}
	}
}

func deriveDeploy(snap Snapshot, reviewPassed bool) baseline {
	switch {
	case snap.Deployed:
		return baseline{status: status.StatusPassed, detail: "Deployed"}
	case reviewPassed && snap.PRMerged && snap.DeployApproved:
		return baseline{status: status.StatusActive, detail: "Deploying"}
	case reviewPassed && snap.PRMerged:
		return baseline{status: status.StatusAwaitingApproval, detail: "Ready to deploy"}
	default:
		return baseline{status: status.StatusPending}
	}
}

func deriveRelease(snap Snapshot) baseline {
	b := baseline{substeps: []Substep{
		{Label: "Release notes", Status: flagStatus(snap.ReleaseNotes)},
		{Label: "Notification", Status: flagStatus(snap.Notified)},
		{Label: "Docs", Status: flagStatus(snap.DocsUpdated)},
	}}
	switch {
	case snap.Released:
		b.status, b.detail = status.StatusPassed, "Released"
	case snap.Deployed:
		b.status, b.detail = status.StatusActive, "Releasing"
	default:
		b.status = status.StatusPending
	}
	return b
}

func flagStatus(done bool) status.Status {
	if done {
		return status.StatusPassed
	}
	return status.StatusPending
}
