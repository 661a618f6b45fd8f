package engine

import (
	"storyflow/internal/pipeline"
	"storyflow/internal/status"
)

// Progress is a read-only rollup of a computed view list.
type Progress struct {
	Total    int
	Passed   int
	Failed   int
	Active   int // includes timed-out stages
	TimedOut int
	Awaiting int
	Skipped  int
	Pending  int

	// Current is the first stage that is neither passed nor skipped, or
	// empty when every stage is settled.
	Current pipeline.StageID
}

// Complete reports whether every stage is passed or skipped.
func (p Progress) Complete() bool {
	return p.Total > 0 && p.Passed+p.Skipped == p.Total
}

// Percent returns the share of settled stages, 0–100.
func (p Progress) Percent() int {
	if p.Total == 0 {
		return 0
	}
	return (p.Passed + p.Skipped) * 100 / p.Total
}

// Summarize counts stages by status.
func Summarize(views []StageView) Progress {
	p := Progress{Total: len(views)}
	for _, v := range views {
		switch v.Status {
		case status.StatusPassed:
			p.Passed++
		case status.StatusFailed:
			p.Failed++
		case status.StatusActive:
			p.Active++
		case status.StatusTimedOut:
			p.Active++
			p.TimedOut++
		case status.StatusAwaitingApproval:
			p.Awaiting++
		case status.StatusSkipped:
			p.Skipped++
		case status.StatusPending:
			p.Pending++
		}
		if p.Current == "" && !v.Status.IsSettled() {
			p.Current = v.ID
		}
	}
	return p
}
