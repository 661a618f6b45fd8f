package engine

import (
	"time"

	"storyflow/internal/status"
)

// PropagateBlocking enforces that a failed stage suppresses every later
// stage from showing as active or awaiting approval. Suppressed stages are
// forced back to pending with detail, start time and actions cleared.
//
// Skipped stages neither block nor are blocked. A passed stage lifts the
// block for the stages after it.
func PropagateBlocking(views []StageView) []StageView {
	out := cloneViews(views)

	blocked := false
	for i := range out {
		v := &out[i]
		if blocked && (v.Status == status.StatusActive || v.Status == status.StatusAwaitingApproval) {
			v.Status = status.StatusPending
			v.Detail = ""
			v.StartedAt = time.Time{}
			v.Actions, v.pinned = nil, false
		}

		switch v.Status {
		case status.StatusFailed:
			blocked = true
		case status.StatusPassed:
			blocked = false
		}
	}
	return out
}
