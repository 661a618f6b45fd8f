package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"storyflow/internal/pipeline"
	"storyflow/internal/status"
)

func viewsWith(statuses ...status.Status) []StageView {
	stages := pipeline.Default().Stages()
	views := make([]StageView, len(statuses))
	for i, st := range statuses {
		s := stages[i]
		views[i] = StageView{ID: s.ID, Label: s.Label, Actor: s.Actor, Status: st, Timeout: s.Timeout}
	}
	return views
}

func TestPropagateBlocking(t *testing.T) {
	p, a, w, f, ok, sk := status.StatusPending, status.StatusActive, status.StatusAwaitingApproval,
		status.StatusFailed, status.StatusPassed, status.StatusSkipped

	tests := []struct {
		name string
		in   []status.Status
		want []status.Status
	}{
		{"no failure", []status.Status{ok, a, w, p}, []status.Status{ok, a, w, p}},
		{"failure suppresses later", []status.Status{f, a, w, p}, []status.Status{f, p, p, p}},
		{"passed lifts block", []status.Status{f, a, ok, w}, []status.Status{f, p, ok, w}},
		{"skipped keeps block", []status.Status{f, sk, a}, []status.Status{f, sk, p}},
		{"earlier stages untouched", []status.Status{a, f, w}, []status.Status{a, f, p}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PropagateBlocking(viewsWith(tt.in...))
			for i, v := range got {
				assert.Equal(t, tt.want[i], v.Status, v.ID)
			}
		})
	}
}

func TestPropagateBlocking_ClearsSuppressedFields(t *testing.T) {
	views := viewsWith(status.StatusFailed, status.StatusActive)
	views[1].Detail = "Planning"
	views[1].StartedAt = baseTime
	views[1].Actions = recoveryActions()
	views[1].pinned = true

	got := PropagateBlocking(views)

	assert.Empty(t, got[1].Detail)
	assert.True(t, got[1].StartedAt.IsZero())
	assert.Empty(t, got[1].Actions)
	assert.False(t, got[1].pinned)
	assert.Equal(t, "Planning", views[1].Detail)
}

func TestApplyTimeouts(t *testing.T) {
	tests := []struct {
		name        string
		status      status.Status
		startedAt   time.Time
		timeout     time.Duration
		wantStatus  status.Status
		wantElapsed time.Duration
	}{
		{"within budget", status.StatusActive, baseTime.Add(-time.Minute), 5 * time.Minute, status.StatusActive, time.Minute},
		{"at budget", status.StatusActive, baseTime.Add(-5 * time.Minute), 5 * time.Minute, status.StatusTimedOut, 5 * time.Minute},
		{"no budget", status.StatusActive, baseTime.Add(-time.Hour), 0, status.StatusActive, time.Hour},
		{"unknown start", status.StatusActive, time.Time{}, time.Second, status.StatusActive, 0},
		{"future start", status.StatusActive, baseTime.Add(time.Minute), time.Second, status.StatusActive, 0},
		{"not active", status.StatusAwaitingApproval, baseTime.Add(-time.Hour), time.Second, status.StatusAwaitingApproval, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			views := []StageView{{ID: pipeline.StageTest, Status: tt.status, StartedAt: tt.startedAt, Timeout: tt.timeout}}

			got := ApplyTimeouts(views, baseTime)

			assert.Equal(t, tt.wantStatus, got[0].Status)
			assert.Equal(t, tt.wantElapsed, got[0].Elapsed)
			assert.Equal(t, tt.status, views[0].Status)
		})
	}
}

func TestGateActions(t *testing.T) {
	tests := []struct {
		name   string
		id     pipeline.StageID
		status status.Status
		actor  pipeline.ActorClass
		want   []ActionID
	}{
		{"triage awaiting", pipeline.StageTriage, status.StatusAwaitingApproval, pipeline.ActorHuman,
			[]ActionID{ActionApproveTriage, ActionRejectTriage, ActionDeferTriage}},
		{"deliberation awaiting", pipeline.StageDeliberation, status.StatusAwaitingApproval, pipeline.ActorAgent,
			[]ActionID{ActionStartDeliberation, ActionSkipStep}},
		{"implement awaiting", pipeline.StageImplement, status.StatusAwaitingApproval, pipeline.ActorAgent,
			[]ActionID{ActionStartImplementation, ActionSkipStep}},
		{"review awaiting", pipeline.StageReview, status.StatusAwaitingApproval, pipeline.ActorHuman,
			[]ActionID{ActionMergePR, ActionRequestChanges}},
		{"deploy awaiting", pipeline.StageDeploy, status.StatusAwaitingApproval, pipeline.ActorSystem,
			[]ActionID{ActionApproveDeploy, ActionSkipStep}},
		{"ungated awaiting falls back to skip", pipeline.StageRelease, status.StatusAwaitingApproval, pipeline.ActorSystem,
			[]ActionID{ActionSkipStep}},
		{"automated timed out", pipeline.StageTest, status.StatusTimedOut, pipeline.ActorSystem,
			[]ActionID{ActionCancelStep, ActionRetryStep, ActionSkipStep}},
		{"automated failed", pipeline.StageImplement, status.StatusFailed, pipeline.ActorAgent,
			[]ActionID{ActionRetryStep, ActionSkipStep}},
		{"human failed", pipeline.StageTriage, status.StatusFailed, pipeline.ActorHuman, nil},
		{"active", pipeline.StageImplement, status.StatusActive, pipeline.ActorAgent, nil},
		{"passed", pipeline.StageReview, status.StatusPassed, pipeline.ActorHuman, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []ActionID
			for _, a := range GateActions(tt.id, tt.status, tt.actor) {
				ids = append(ids, a.ID)
				assert.NotEmpty(t, a.Label)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestResolveGates_PinnedActionsWin(t *testing.T) {
	views := viewsWith(status.StatusFailed, status.StatusAwaitingApproval)
	views[0].Actions = actions(ActionSkipStep)
	views[0].pinned = true

	got := ResolveGates(views)

	assert.Equal(t, actions(ActionSkipStep), got[0].Actions)
	assert.True(t, got[1].HasAction(ActionSkipStep))
	assert.Empty(t, views[1].Actions)
}

func TestActionVocabulary(t *testing.T) {
	for _, id := range Actions() {
		assert.True(t, id.IsValid(), id)
		assert.NotEqual(t, string(id), id.Label(), id)
	}
	assert.False(t, ActionID("launch-rocket").IsValid())
	assert.Equal(t, "launch-rocket", ActionID("launch-rocket").Label())
}

func TestDetailText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain text", "  build green  ", "build green"},
		{"empty", "", ""},
		{"message field", `{"message":"deployed to staging"}`, "deployed to staging"},
		{"message wins over reason", `{"reason":"r","message":"m"}`, "m"},
		{"detail field", `{"detail":"d"}`, "d"},
		{"reason field", `{"reason":"flaky"}`, "flaky"},
		{"error field", `{"error":"exit 1"}`, "exit 1"},
		{"blank fields skipped", `{"message":"  ","error":"boom"}`, "boom"},
		{"no known fields", `{"code":7}`, ""},
		{"malformed json", `{"message":`, ""},
		{"wrong field type", `{"message":42}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetailText(tt.raw))
		})
	}
}

func TestSummarize(t *testing.T) {
	views := viewsWith(
		status.StatusPassed,
		status.StatusSkipped,
		status.StatusTimedOut,
		status.StatusAwaitingApproval,
		status.StatusFailed,
		status.StatusPending,
		status.StatusActive,
		status.StatusPending,
	)

	p := Summarize(views)

	assert.Equal(t, Progress{
		Total:    8,
		Passed:   1,
		Failed:   1,
		Active:   2,
		TimedOut: 1,
		Awaiting: 1,
		Skipped:  1,
		Pending:  2,
		Current:  pipeline.StageDeliberation,
	}, p)
	assert.False(t, p.Complete())
	assert.Equal(t, 25, p.Percent())
}

func TestSummarize_Complete(t *testing.T) {
	p := Summarize(viewsWith(status.StatusPassed, status.StatusSkipped, status.StatusPassed))

	assert.True(t, p.Complete())
	assert.Equal(t, 100, p.Percent())
	assert.Empty(t, p.Current)
}

func TestSummarize_Empty(t *testing.T) {
	p := Summarize(nil)

	assert.False(t, p.Complete())
	assert.Equal(t, 0, p.Percent())
}
