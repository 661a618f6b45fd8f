package engine

import (
	"time"

	"storyflow/internal/status"
)

// ApplyTimeouts overlays the timed-out status on active stages whose elapsed
// time since start has reached their timeout budget.
//
// now is the only clock the engine sees. For a fixed input, advancing now can
// only move a stage from active to timed_out, never back. Elapsed is filled
// for every active stage with a known start; a start in the future counts as
// zero elapsed.
func ApplyTimeouts(views []StageView, now time.Time) []StageView {
	out := cloneViews(views)

	for i := range out {
		v := &out[i]
		if v.Status != status.StatusActive || v.StartedAt.IsZero() {
			continue
		}
		elapsed := now.Sub(v.StartedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		v.Elapsed = elapsed
		if v.Timeout > 0 && elapsed >= v.Timeout {
			v.Status = status.StatusTimedOut
		}
	}
	return out
}
