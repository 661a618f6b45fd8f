package api

import (
	"time"

	"storyflow/internal/engine"
	"storyflow/internal/lifecycle"
)

// SubstepResponse is one substep of a stage.
type SubstepResponse struct {
	Label  string `json:"label"`
	Status string `json:"status"`
}

// ActionResponse is a permissible operator action.
type ActionResponse struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// StageResponse is the wire form of one [engine.StageView].
type StageResponse struct {
	ID             string            `json:"id"`
	Label          string            `json:"label"`
	Actor          string            `json:"actor"`
	Status         string            `json:"status"`
	Detail         string            `json:"detail,omitempty"`
	Substeps       []SubstepResponse `json:"substeps,omitempty"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	ElapsedSeconds float64           `json:"elapsed_seconds,omitempty"`
	TimeoutSeconds float64           `json:"timeout_seconds,omitempty"`
	Actions        []ActionResponse  `json:"actions"`
}

// ProgressResponse is the wire form of [engine.Progress].
type ProgressResponse struct {
	Total    int    `json:"total"`
	Passed   int    `json:"passed"`
	Failed   int    `json:"failed"`
	Active   int    `json:"active"`
	TimedOut int    `json:"timed_out"`
	Awaiting int    `json:"awaiting_approval"`
	Skipped  int    `json:"skipped"`
	Pending  int    `json:"pending"`
	Percent  int    `json:"percent"`
	Complete bool   `json:"complete"`
	Current  string `json:"current,omitempty"`
}

// StoryResponse is a computed projection of one story.
type StoryResponse struct {
	StoryID    string           `json:"story_id"`
	Template   string           `json:"template"`
	ComputedAt time.Time        `json:"computed_at"`
	Progress   ProgressResponse `json:"progress"`
	Stages     []StageResponse  `json:"stages,omitempty"`
}

// StoryListResponse lists stories with their progress only.
type StoryListResponse struct {
	Stories []StoryResponse `json:"stories"`
	Errors  []StoryError    `json:"errors,omitempty"`
}

// StoryError reports a story that could not be projected.
type StoryError struct {
	StoryID string `json:"story_id"`
	Error   string `json:"error"`
}

// ActionRequest is the optional body of an action POST.
type ActionRequest struct {
	Actor  string `json:"actor"`
	Detail string `json:"detail"`
}

// ActionResultResponse describes a dispatched action.
type ActionResultResponse struct {
	Action   string `json:"action"`
	Stage    string `json:"stage"`
	Mutation string `json:"mutation"`
	EventID  string `json:"event_id,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewStageResponse converts a view.
func NewStageResponse(v engine.StageView) StageResponse {
	out := StageResponse{
		ID:             string(v.ID),
		Label:          v.Label,
		Actor:          string(v.Actor),
		Status:         string(v.Status),
		Detail:         v.Detail,
		ElapsedSeconds: v.Elapsed.Seconds(),
		TimeoutSeconds: v.Timeout.Seconds(),
		Actions:        make([]ActionResponse, 0, len(v.Actions)),
	}
	if !v.StartedAt.IsZero() {
		started := v.StartedAt.UTC()
		out.StartedAt = &started
	}
	for _, s := range v.Substeps {
		out.Substeps = append(out.Substeps, SubstepResponse{Label: s.Label, Status: string(s.Status)})
	}
	for _, a := range v.Actions {
		out.Actions = append(out.Actions, ActionResponse{ID: string(a.ID), Label: a.Label})
	}
	return out
}

// NewProgressResponse converts a progress rollup.
func NewProgressResponse(p engine.Progress) ProgressResponse {
	return ProgressResponse{
		Total:    p.Total,
		Passed:   p.Passed,
		Failed:   p.Failed,
		Active:   p.Active,
		TimedOut: p.TimedOut,
		Awaiting: p.Awaiting,
		Skipped:  p.Skipped,
		Pending:  p.Pending,
		Percent:  p.Percent(),
		Complete: p.Complete(),
		Current:  string(p.Current),
	}
}

// NewStoryResponse converts a projection. withStages=false omits the views.
func NewStoryResponse(p lifecycle.Projection, withStages bool) StoryResponse {
	out := StoryResponse{
		StoryID:    p.StoryID,
		Template:   p.Template,
		ComputedAt: p.ComputedAt.UTC(),
		Progress:   NewProgressResponse(p.Progress),
	}
	if withStages {
		out.Stages = make([]StageResponse, 0, len(p.Views))
		for _, v := range p.Views {
			out.Stages = append(out.Stages, NewStageResponse(v))
		}
	}
	return out
}
