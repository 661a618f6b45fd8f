// Package snapshot reads and writes the YAML stories file that is the
// source of record for per-story lifecycle fields.
//
// Each story is stored as a [Record] keyed by story id. [Record.Snapshot]
// converts a record into the [engine.Snapshot] the status engine consumes.
// [FromSnapshot] converts back for new records, and [Record.Merge] writes
// only the fields a patch changed into an existing one.
//
// Key types:
//   - [File] is the whole stories file
//   - [Record] is one story as written on disk
//   - [Reader] loads records, [Writer] patches them atomically
package snapshot

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"storyflow/internal/engine"
	"storyflow/internal/pipeline"
)

// ErrStoryNotFound is returned when a story id is absent from the stories file.
var ErrStoryNotFound = errors.New("story not found")

// File is the top-level shape of the stories file.
type File struct {
	Stories map[string]Record `yaml:"stories"`
}

// Record is a single story's lifecycle fields as stored on disk.
//
// Enum-like fields are kept as plain strings so unknown values written by
// other producers survive a read-modify-write cycle.
type Record struct {
	Template     string `yaml:"template,omitempty"`
	Triage       string `yaml:"triage,omitempty"`
	EpicID       string `yaml:"epic_id,omitempty"`
	Deliberation string `yaml:"deliberation,omitempty"`
	AgentRun     string `yaml:"agent_run,omitempty"`
	PRNumber     int    `yaml:"pr_number,omitempty"`
	PRMerged     bool   `yaml:"pr_merged,omitempty"`

	// TestsPass is tri-state: absent means no result yet.
	TestsPass *bool  `yaml:"tests_pass,omitempty"`
	Suites    Suites `yaml:"suites,omitempty"`

	DeployApproved bool         `yaml:"deploy_approved,omitempty"`
	Deployed       bool         `yaml:"deployed,omitempty"`
	Released       bool         `yaml:"released,omitempty"`
	Release        ReleaseFlags `yaml:"release,omitempty"`

	CurrentStage          string `yaml:"current_stage,omitempty"`
	CurrentStageStartedAt string `yaml:"current_stage_started_at,omitempty"`

	// Timeouts maps stage ids (aliases allowed) to a Go duration string
	// or a plain number of seconds.
	Timeouts map[string]string `yaml:"timeouts,omitempty"`
}

// Suites holds per-suite test results.
type Suites struct {
	E2E  string `yaml:"e2e,omitempty"`
	Unit string `yaml:"unit,omitempty"`
	UI   string `yaml:"ui,omitempty"`
}

// ReleaseFlags holds the release checklist.
type ReleaseFlags struct {
	Notes    bool `yaml:"notes,omitempty"`
	Notified bool `yaml:"notified,omitempty"`
	Docs     bool `yaml:"docs,omitempty"`
}

// Snapshot converts the record into an engine snapshot for the given story.
// Unparseable start times and timeouts are dropped rather than reported.
func (r Record) Snapshot(storyID string) engine.Snapshot {
	snap := engine.Snapshot{
		StoryID:        storyID,
		Template:       r.Template,
		Triage:         engine.TriageDecision(strings.ToLower(r.Triage)),
		EpicID:         r.EpicID,
		Deliberation:   engine.DeliberationPhase(strings.ToLower(r.Deliberation)),
		AgentRun:       engine.AgentRunStatus(strings.ToLower(r.AgentRun)),
		PRNumber:       r.PRNumber,
		PRMerged:       r.PRMerged,
		E2E:            engine.SuiteResult(strings.ToLower(r.Suites.E2E)),
		Unit:           engine.SuiteResult(strings.ToLower(r.Suites.Unit)),
		UI:             engine.SuiteResult(strings.ToLower(r.Suites.UI)),
		DeployApproved: r.DeployApproved,
		Deployed:       r.Deployed,
		Released:       r.Released,
		ReleaseNotes:   r.Release.Notes,
		Notified:       r.Release.Notified,
		DocsUpdated:    r.Release.Docs,
		CurrentStage:   r.CurrentStage,
	}
	if r.TestsPass != nil {
		v := *r.TestsPass
		snap.TestsPass = &v
	}
	if t, ok := ParseTime(r.CurrentStageStartedAt); ok {
		snap.CurrentStageStartedAt = t
	}
	for raw, val := range r.Timeouts {
		id, ok := pipeline.Canonical(raw)
		if !ok {
			continue
		}
		d, ok := ParseDuration(val)
		if !ok {
			continue
		}
		if snap.TimeoutOverrides == nil {
			snap.TimeoutOverrides = make(map[pipeline.StageID]time.Duration)
		}
		snap.TimeoutOverrides[id] = d
	}
	return snap
}

// FromSnapshot converts an engine snapshot back into its on-disk record.
func FromSnapshot(snap engine.Snapshot) Record {
	r := Record{
		Template:     snap.Template,
		Triage:       string(snap.Triage),
		EpicID:       snap.EpicID,
		Deliberation: string(snap.Deliberation),
		AgentRun:     string(snap.AgentRun),
		PRNumber:     snap.PRNumber,
		PRMerged:     snap.PRMerged,
		Suites: Suites{
			E2E:  string(snap.E2E),
			Unit: string(snap.Unit),
			UI:   string(snap.UI),
		},
		DeployApproved: snap.DeployApproved,
		Deployed:       snap.Deployed,
		Released:       snap.Released,
		Release: ReleaseFlags{
			Notes:    snap.ReleaseNotes,
			Notified: snap.Notified,
			Docs:     snap.DocsUpdated,
		},
		CurrentStage: snap.CurrentStage,
	}
	if snap.TestsPass != nil {
		v := *snap.TestsPass
		r.TestsPass = &v
	}
	if !snap.CurrentStageStartedAt.IsZero() {
		r.CurrentStageStartedAt = snap.CurrentStageStartedAt.UTC().Format(time.RFC3339Nano)
	}
	if len(snap.TimeoutOverrides) > 0 {
		r.Timeouts = make(map[string]string, len(snap.TimeoutOverrides))
		for id, d := range snap.TimeoutOverrides {
			r.Timeouts[string(id)] = d.String()
		}
	}
	return r
}

// Merge returns a copy of r with the fields that differ between before and
// after written in. before must be r.Snapshot for the same story. Untouched
// fields keep their stored text, including values the engine could not parse.
func (r Record) Merge(before, after engine.Snapshot) Record {
	out := r
	setString := func(dst *string, was, is string) {
		if was != is {
			*dst = is
		}
	}
	setBool := func(dst *bool, was, is bool) {
		if was != is {
			*dst = is
		}
	}

	setString(&out.Template, before.Template, after.Template)
	setString(&out.Triage, string(before.Triage), string(after.Triage))
	setString(&out.EpicID, before.EpicID, after.EpicID)
	setString(&out.Deliberation, string(before.Deliberation), string(after.Deliberation))
	setString(&out.AgentRun, string(before.AgentRun), string(after.AgentRun))
	if before.PRNumber != after.PRNumber {
		out.PRNumber = after.PRNumber
	}
	setBool(&out.PRMerged, before.PRMerged, after.PRMerged)
	if !sameTri(before.TestsPass, after.TestsPass) {
		out.TestsPass = nil
		if after.TestsPass != nil {
			v := *after.TestsPass
			out.TestsPass = &v
		}
	}
	setString(&out.Suites.E2E, string(before.E2E), string(after.E2E))
	setString(&out.Suites.Unit, string(before.Unit), string(after.Unit))
	setString(&out.Suites.UI, string(before.UI), string(after.UI))
	setBool(&out.DeployApproved, before.DeployApproved, after.DeployApproved)
	setBool(&out.Deployed, before.Deployed, after.Deployed)
	setBool(&out.Released, before.Released, after.Released)
	setBool(&out.Release.Notes, before.ReleaseNotes, after.ReleaseNotes)
	setBool(&out.Release.Notified, before.Notified, after.Notified)
	setBool(&out.Release.Docs, before.DocsUpdated, after.DocsUpdated)
	setString(&out.CurrentStage, before.CurrentStage, after.CurrentStage)
	if !before.CurrentStageStartedAt.Equal(after.CurrentStageStartedAt) {
		out.CurrentStageStartedAt = ""
		if !after.CurrentStageStartedAt.IsZero() {
			out.CurrentStageStartedAt = after.CurrentStageStartedAt.UTC().Format(time.RFC3339Nano)
		}
	}
	out.Timeouts = mergeTimeouts(r.Timeouts, before.TimeoutOverrides, after.TimeoutOverrides)
	return out
}

func sameTri(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// mergeTimeouts rewrites only the stages whose override changed. A changed
// stage replaces every raw key that resolves to it.
func mergeTimeouts(raw map[string]string, before, after map[pipeline.StageID]time.Duration) map[string]string {
	changed := make(map[pipeline.StageID]bool)
	for id, d := range before {
		if a, ok := after[id]; !ok || a != d {
			changed[id] = true
		}
	}
	for id, d := range after {
		if b, ok := before[id]; !ok || b != d {
			changed[id] = true
		}
	}
	if len(changed) == 0 {
		return raw
	}

	out := make(map[string]string, len(raw)+len(changed))
	for key, val := range raw {
		if id, ok := pipeline.Canonical(key); ok && changed[id] {
			continue
		}
		out[key] = val
	}
	for id := range changed {
		if d, ok := after[id]; ok && d > 0 {
			out[string(id)] = d.String()
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTime parses a timestamp written as RFC 3339, a naive UTC
// date-time, or unix seconds.
func ParseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseDuration parses a Go duration string ("90s", "10m") or a plain
// number of seconds. Non-positive values are rejected.
func ParseDuration(raw string) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, d > 0
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second)), true
	}
	return 0, false
}
