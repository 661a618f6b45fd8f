package engine

import (
	"sort"
	"time"

	"storyflow/internal/pipeline"
	"storyflow/internal/status"
)

// LatestByStage returns the most recent event for each stage, keyed by
// canonical stage id. Events are ordered by CreatedAt; ties keep log order,
// so the later entry in the slice wins. Events with unknown stage ids are
// dropped.
func LatestByStage(events []Event) map[pipeline.StageID]Event {
	ordered := make([]Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	latest := make(map[pipeline.StageID]Event)
	for _, ev := range ordered {
		id, ok := pipeline.Canonical(ev.StageID)
		if !ok {
			continue
		}
		latest[id] = ev
	}
	return latest
}

// ApplyOverrides replays the most recent event per stage over the baseline
// views and returns a new slice. Only the last event of a stage is consulted,
// so duplicate entries have no additional effect. Unknown event kinds are
// ignored.
func ApplyOverrides(views []StageView, events []Event) []StageView {
	out := cloneViews(views)
	latest := LatestByStage(events)

	for i := range out {
		ev, ok := latest[out[i].ID]
		if !ok {
			continue
		}
		out[i] = applyEvent(out[i], ev)
	}
	return out
}

// applyEvent applies a single override event to a view.
func applyEvent(v StageView, ev Event) StageView {
	detail := DetailText(ev.Detail)

	switch ev.Kind {
	case EventCancelled:
		if !v.Status.IsRunning() {
			return v
		}
		v.Status = status.StatusFailed
		v.Detail = orDefault(detail, "Cancelled")
		v.Actions = recoveryActions()
		v.pinned = true

	case EventFailed:
		if !v.Status.IsRunning() {
			return v
		}
		v.Status = status.StatusFailed
		v.Detail = orDefault(detail, "Failed")
		if len(v.Actions) == 0 {
			v.Actions = recoveryActions()
		}
		v.pinned = true

	case EventSkipped:
		if v.Status == status.StatusPassed {
			return v
		}
		v.Status = status.StatusSkipped
		v.Detail = orDefault(detail, "Skipped")
		v.Actions, v.pinned = nil, false

	case EventRetried:
		if v.Status == status.StatusPassed {
			return v
		}
		v.Status = status.StatusActive
		v.Detail = "retrying"
		v.StartedAt = ev.CreatedAt
		v.Actions, v.pinned = nil, false

	case EventReset:
		// Reset is the one override allowed to move a passed stage back.
		v.Status = status.StatusPending
		v.Detail = ""
		v.StartedAt = time.Time{}
		v.Substeps = resetSubsteps(v.Substeps)
		v.Actions, v.pinned = nil, false

	case EventStarted:
		if v.Status != status.StatusPending {
			return v
		}
		v.Status = status.StatusActive
		if v.Actor == pipeline.ActorHuman {
			v.Status = status.StatusAwaitingApproval
		}
		v.StartedAt = ev.CreatedAt
		if detail != "" {
			v.Detail = detail
		}
		if v.ID == pipeline.StageReview {
			v.Actions = reviewActions()
			v.pinned = true
		}

	case EventCompleted:
		if v.Status == status.StatusPassed {
			return v
		}
		v.Status = status.StatusPassed
		v.Detail = orDefault(detail, "Completed")
		if v.ID == pipeline.StageDeliberation {
			v.Substeps = settleSubsteps(v.Substeps)
		}
		v.Actions, v.pinned = nil, false

	case EventProgress:
		// Progress notes also land on gates, where they record a deferral.
		if (v.Status == status.StatusActive || v.Status == status.StatusAwaitingApproval) && detail != "" {
			v.Detail = detail
		}
	}
	return v
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func resetSubsteps(subs []Substep) []Substep {
	if subs == nil {
		return nil
	}
	out := make([]Substep, len(subs))
	for i, s := range subs {
		out[i] = Substep{Label: s.Label, Status: status.StatusPending}
	}
	return out
}
