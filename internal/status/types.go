// Package status defines the closed set of statuses a pipeline stage can show.
//
// Every [engine.StageView] carries exactly one of these values. No other value
// is ever emitted by the engine, and [Parse] rejects anything outside the set.
package status

// Status represents the displayed status of a single pipeline stage.
type Status string

// Stage status values.
const (
	// StatusPending means the stage has not started and nothing is blocking it yet.
	StatusPending Status = "pending"

	// StatusActive means the stage is currently executing.
	StatusActive Status = "active"

	// StatusPassed means the stage completed successfully.
	StatusPassed Status = "passed"

	// StatusFailed means the stage failed and blocks every later stage.
	StatusFailed Status = "failed"

	// StatusSkipped means execution intentionally moved past the stage.
	StatusSkipped Status = "skipped"

	// StatusAwaitingApproval means the stage is gated on an operator decision.
	StatusAwaitingApproval Status = "awaiting_approval"

	// StatusTimedOut is a derived overlay on StatusActive once the stage has
	// run for at least its timeout budget. It is never stored.
	StatusTimedOut Status = "timed_out"
)

// all lists the statuses in a stable display order.
var all = []Status{
	StatusPending,
	StatusActive,
	StatusPassed,
	StatusFailed,
	StatusSkipped,
	StatusAwaitingApproval,
	StatusTimedOut,
}

// All returns every valid status in display order.
func All() []Status {
	out := make([]Status, len(all))
	copy(out, all)
	return out
}

// IsValid reports whether s is one of the seven known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusPassed, StatusFailed,
		StatusSkipped, StatusAwaitingApproval, StatusTimedOut:
		return true
	}
	return false
}

// IsRunning reports whether the stage is executing, including the timed-out overlay.
func (s Status) IsRunning() bool {
	return s == StatusActive || s == StatusTimedOut
}

// IsSettled reports whether the stage no longer needs attention to let the
// pipeline proceed (passed or skipped).
func (s Status) IsSettled() bool {
	return s == StatusPassed || s == StatusSkipped
}

// Parse converts a raw string into a [Status].
// The second return value is false for unknown values.
func Parse(raw string) (Status, bool) {
	s := Status(raw)
	return s, s.IsValid()
}
