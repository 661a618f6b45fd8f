package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyflow/internal/api"
	"storyflow/internal/engine"
	"storyflow/internal/snapshot"
)

const storiesYAML = `stories:
  S-1:
    epic_id: E-1
    deliberation: decided
    agent_run: failed
  S-2:
    triage: queued
  S-3:
    template: quickfix
    pr_number: 7
    pr_merged: true
    tests_pass: true
`

func TestStatusCommand_Summary(t *testing.T) {
	env := newTestEnv(t, storiesYAML)

	result := env.Run("status")

	require.NoError(t, result.Err)
	out := env.Out.String()
	assert.Contains(t, out, "✗ S-1")
	assert.Contains(t, out, "? S-2")
	assert.Contains(t, out, "S-3")
	assert.Less(t, strings.Index(out, "S-1"), strings.Index(out, "S-2"), "stories are listed in id order")
}

func TestStatusCommand_Detail(t *testing.T) {
	env := newTestEnv(t, storiesYAML)

	result := env.Run("status", "S-1")

	require.NoError(t, result.Err)
	out := env.Out.String()
	assert.Contains(t, out, "Story S-1")
	assert.Contains(t, out, "Agent run failed")
	assert.Contains(t, out, "retry-step")
}

func TestStatusCommand_HidesActionsWhenConfigured(t *testing.T) {
	env := newTestEnv(t, storiesYAML)
	env.App.Config.Output.ShowActions = false

	result := env.Run("status", "S-1")

	require.NoError(t, result.Err)
	assert.NotContains(t, env.Out.String(), "actions:")
}

func TestStatusCommand_JSON(t *testing.T) {
	env := newTestEnv(t, storiesYAML)

	result := env.Run("status", "S-3", "--json")

	require.NoError(t, result.Err)
	var got []api.StoryResponse
	require.NoError(t, json.Unmarshal(env.Out.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "quickfix", got[0].Template)
	assert.Len(t, got[0].Stages, 3)
	assert.True(t, testNow.Equal(got[0].ComputedAt))
}

func TestStatusCommand_UnknownStory(t *testing.T) {
	env := newTestEnv(t, storiesYAML)

	result := env.Run("status", "S-404")

	require.Error(t, result.Err)
	code, ok := IsExitError(result.Err)
	assert.True(t, ok, "error should be an ExitError")
	assert.Equal(t, 1, code)
	assert.Contains(t, env.Out.String(), "story not found")
}

func TestStatusCommand_DefaultTemplateFromConfig(t *testing.T) {
	env := newTestEnv(t, "stories:\n  S-9: {}\n")
	env.App.Config.Pipeline.Template = "hotfix"

	result := env.Run("status", "S-9", "--json")

	require.NoError(t, result.Err)
	var got []api.StoryResponse
	require.NoError(t, json.Unmarshal(env.Out.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "hotfix", got[0].Template)
	assert.Len(t, got[0].Stages, 6)
}

func TestActCommand_AppendsEvent(t *testing.T) {
	env := newTestEnv(t, storiesYAML)

	result := env.Run("act", "S-1", "impl", "retry-step", "--actor", "alice")

	require.NoError(t, result.Err)
	assert.Contains(t, env.Out.String(), "retry-step on S-1/implement (append-event)")

	repo, err := env.App.Events()
	require.NoError(t, err)
	events, err := repo.ListByStory(context.Background(), "S-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, engine.EventRetried, events[0].Kind)
	assert.Equal(t, "alice", events[0].Actor)
	assert.True(t, testNow.Equal(events[0].CreatedAt))

	env.Out.Reset()
	require.NoError(t, env.Run("status", "S-1").Err)
	assert.Contains(t, env.Out.String(), "retrying")
}

func TestActCommand_PatchesSnapshot(t *testing.T) {
	env := newTestEnv(t, storiesYAML)

	result := env.Run("act", "S-2", "triage", "approve-triage")

	require.NoError(t, result.Err)
	snap, err := snapshot.NewReaderWithPath(env.Dir, env.App.Config.Snapshots.Path).Get("S-2")
	require.NoError(t, err)
	assert.Equal(t, engine.TriageApproved, snap.Triage)
}

func TestActCommand_DeferTriage(t *testing.T) {
	env := newTestEnv(t, storiesYAML)

	require.NoError(t, env.Run("act", "S-2", "triage", "defer-triage").Err)

	env.Out.Reset()
	require.NoError(t, env.Run("status", "S-2").Err)
	assert.Contains(t, env.Out.String(), "Deferred")
}

func TestActCommand_StartImplementation(t *testing.T) {
	env := newTestEnv(t, "stories:\n  S-5:\n    epic_id: E\n    deliberation: decided\n")

	require.NoError(t, env.Run("act", "S-5", "implement", "start-implementation").Err)

	env.Out.Reset()
	require.NoError(t, env.Run("status", "S-5").Err)
	assert.Contains(t, env.Out.String(), "Agent running")
}

func TestActCommand_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantOut string
	}{
		{"unknown stage", []string{"act", "S-1", "lint", "retry-step"}, "unknown stage"},
		{"unknown action", []string{"act", "S-1", "implement", "explode"}, "unknown action"},
		{"wrong stage", []string{"act", "S-1", "test", "merge-pr"}, "action does not apply to stage"},
		{"unknown story", []string{"act", "S-404", "implement", "retry-step"}, "story not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, storiesYAML)

			result := env.Run(tt.args...)

			require.Error(t, result.Err)
			assert.Equal(t, 1, result.ExitCode)
			assert.Contains(t, env.Out.String(), tt.wantOut)
		})
	}
}

func TestActCommand_RequiresThreeArgs(t *testing.T) {
	env := newTestEnv(t, storiesYAML)

	result := env.Run("act", "S-1", "implement")

	require.Error(t, result.Err)
	assert.Equal(t, 1, result.ExitCode)
	assert.Contains(t, env.ErrOut.String(), "accepts 3 arg(s)")
}

func TestEventsImportAndList(t *testing.T) {
	env := newTestEnv(t, storiesYAML)
	logPath := filepath.Join(env.Dir, "events.jsonl")
	writeTestFile(t, logPath, strings.Join([]string{
		`{"id":"e1","story_id":"S-1","stage":"impl","kind":"started","created_at":"2026-03-01T11:00:00Z"}`,
		`not json`,
		`{"id":"e2","story_id":"S-1","stage_id":"implement","kind":"progress","detail":"halfway","actor":"agent","created_at":1772362800}`,
		`{"id":"e3","story_id":"S-2","stage":"triage","kind":"progress","created_at":"2026-03-01T11:30:00Z"}`,
		``,
	}, "\n"))

	result := env.Run("events", "import", logPath)

	require.NoError(t, result.Err)
	assert.Contains(t, env.Out.String(), "Imported 3 events for 2 stories (1 lines skipped)")

	env.Out.Reset()
	require.NoError(t, env.Run("events", "import", logPath).Err)
	assert.Contains(t, env.Out.String(), "Imported 0 events", "re-import is idempotent")

	env.Out.Reset()
	require.NoError(t, env.Run("events", "list", "S-1").Err)
	out := env.Out.String()
	assert.Contains(t, out, "Events for S-1 (2)")
	assert.Contains(t, out, "halfway")
	assert.Contains(t, out, "by agent")

	env.Out.Reset()
	require.NoError(t, env.Run("events", "list").Err)
	assert.Contains(t, env.Out.String(), "Stories with events (2)")
	assert.Contains(t, env.Out.String(), "  S-2")
}

func TestEventsImport_OversizedLineIsCounted(t *testing.T) {
	env := newTestEnv(t, storiesYAML)
	logPath := filepath.Join(env.Dir, "events.jsonl")
	writeTestFile(t, logPath, strings.Join([]string{
		`{"id":"e1","story_id":"S-1","stage":"implement","kind":"started","created_at":"2026-03-01T11:00:00Z"}`,
		`{"id":"e2","story_id":"S-1","stage":"implement","kind":"progress","detail":"` + strings.Repeat("z", 2*1024*1024) + `","created_at":"2026-03-01T11:01:00Z"}`,
		`{"id":"e3","story_id":"S-1","stage":"implement","kind":"progress","created_at":"2026-03-01T11:02:00Z"}`,
		`{"id":"e4","story_id":"S-2","stage":"triage","kind":"progress","created_at":"2026-03-01T11:03:00Z"}`,
	}, "\n"))

	result := env.Run("events", "import", logPath)

	require.NoError(t, result.Err)
	assert.Contains(t, env.Out.String(), "Imported 3 events for 2 stories (1 lines skipped)")
}

func TestEventsImport_MissingFile(t *testing.T) {
	env := newTestEnv(t, storiesYAML)

	result := env.Run("events", "import", filepath.Join(env.Dir, "missing.jsonl"))

	require.Error(t, result.Err)
	assert.Contains(t, env.Out.String(), "failed to open event log")
}

func TestTemplatesCommand(t *testing.T) {
	env := newTestEnv(t, "")
	manifestPath := filepath.Join(env.Dir, "templates.csv")
	writeTestFile(t, manifestPath, "template,stage\nspike,plan\nspike,deliberation\n")
	env.App.Config.Pipeline.ManifestPath = manifestPath
	env.App.Config.Pipeline.Timeouts = map[string]time.Duration{"ci": 90 * time.Second}

	result := env.Run("templates")

	require.NoError(t, result.Err)
	out := env.Out.String()
	assert.Contains(t, out, "full")
	assert.Contains(t, out, "quickfix")
	assert.Contains(t, out, "plan → deliberation")
	assert.Contains(t, out, "timeout 1m30s")
}

func TestTemplatesCommand_BadManifest(t *testing.T) {
	env := newTestEnv(t, "")
	env.App.Config.Pipeline.ManifestPath = filepath.Join(env.Dir, "missing.csv")

	result := env.Run("templates")

	require.Error(t, result.Err)
	assert.Contains(t, env.Out.String(), "failed to open manifest")
}

func TestWatchCommand_Once(t *testing.T) {
	env := newTestEnv(t, storiesYAML)

	result := env.Run("watch", "--once", "S-1", "S-3")

	require.NoError(t, result.Err)
	out := env.Out.String()
	assert.Contains(t, out, "S-1")
	assert.Contains(t, out, "S-3")
	assert.NotContains(t, out, "S-2")
}

func TestWatchCommand_RunsUntilCancelled(t *testing.T) {
	env := newTestEnv(t, storiesYAML)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	result := env.RunContext(ctx, "watch", "S-1")

	require.NoError(t, result.Err)
	assert.Equal(t, 1, strings.Count(env.Out.String(), "S-1"), "summary is printed once")
}

func TestRootCommand_StoriesFlag(t *testing.T) {
	env := newTestEnv(t, "")
	path := filepath.Join(env.Dir, "other.yaml")
	writeTestFile(t, path, "stories:\n  X-1: {}\n")

	result := env.Run("--stories", path, "status")

	require.NoError(t, result.Err)
	assert.Contains(t, env.Out.String(), "X-1")
}

func TestRunWithConfig_InvalidLogLevel(t *testing.T) {
	cfg := newTestEnv(t, "").App.Config
	cfg.Log.Level = "loud"
	var stdout, stderr strings.Builder

	result := RunWithConfig(cfg, []string{"templates"}, &stdout, &stderr)

	assert.Equal(t, 1, result.ExitCode)
	assert.Contains(t, stderr.String(), "unknown log level")
}

func TestExitError(t *testing.T) {
	err := NewExitError(3)

	assert.Equal(t, "exit status 3", err.Error())
	code, ok := IsExitError(err)
	assert.True(t, ok)
	assert.Equal(t, 3, code)

	_, ok = IsExitError(assert.AnError)
	assert.False(t, ok)
}
