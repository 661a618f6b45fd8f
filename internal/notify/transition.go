// Package notify detects stage status transitions between two projections of
// a story and delivers them to a webhook.
package notify

import (
	"context"
	"time"

	"storyflow/internal/engine"
	"storyflow/internal/pipeline"
	"storyflow/internal/status"
)

// Transition is a stage whose displayed status changed between refreshes.
type Transition struct {
	StoryID string
	Stage   pipeline.StageID
	Label   string
	From    status.Status
	To      status.Status
	Detail  string
	At      time.Time
}

// Notifier delivers transitions.
type Notifier interface {
	Notify(ctx context.Context, t Transition) error
}

// Diff returns the stages whose status differs between prev and next, in
// next's stage order. Stages present in only one list are ignored, so a
// template change never produces transitions.
func Diff(storyID string, prev, next []engine.StageView, at time.Time) []Transition {
	before := make(map[pipeline.StageID]status.Status, len(prev))
	for _, v := range prev {
		before[v.ID] = v.Status
	}

	var out []Transition
	for _, v := range next {
		from, ok := before[v.ID]
		if !ok || from == v.Status {
			continue
		}
		out = append(out, Transition{
			StoryID: storyID,
			Stage:   v.ID,
			Label:   v.Label,
			From:    from,
			To:      v.Status,
			Detail:  v.Detail,
			At:      at,
		})
	}
	return out
}

// Filter keeps transitions into a set of target statuses.
type Filter struct {
	targets map[status.Status]bool
}

// NewFilter creates a [Filter]. An empty list matches nothing.
func NewFilter(targets []status.Status) Filter {
	f := Filter{targets: make(map[status.Status]bool, len(targets))}
	for _, st := range targets {
		f.targets[st] = true
	}
	return f
}

// Match reports whether t moves into a target status.
func (f Filter) Match(t Transition) bool {
	return f.targets[t.To]
}

// Apply returns the matching transitions.
func (f Filter) Apply(ts []Transition) []Transition {
	var out []Transition
	for _, t := range ts {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}
