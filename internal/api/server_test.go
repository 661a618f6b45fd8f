package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyflow/internal/engine"
	"storyflow/internal/lifecycle"
	"storyflow/internal/metrics"
	"storyflow/internal/snapshot"
	"storyflow/internal/store"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	srv    *httptest.Server
	reg    *prometheus.Registry
	events *store.EventRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv(snapshot.PathEnv, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "stories.yaml")

	writer := snapshot.NewWriter(path)
	require.NoError(t, writer.Put("S-1", engine.Snapshot{
		EpicID:       "E-1",
		Deliberation: engine.PhaseDecided,
		AgentRun:     engine.AgentRunFailed,
	}))
	require.NoError(t, writer.Put("S-2", engine.Snapshot{Triage: engine.TriageQueued}))

	db, err := store.NewDB(filepath.Join(dir, "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := store.NewEventRepo(db)

	reader := snapshot.NewReaderWithPath(dir, path)
	projector := lifecycle.NewProjector(reader, repo)
	projector.SetClock(func() time.Time { return now })
	dispatcher := lifecycle.NewDispatcher(repo, writer)
	dispatcher.SetStoryReader(reader)
	dispatcher.SetClock(func() time.Time { return now.Add(-time.Minute) })

	reg := prometheus.NewRegistry()
	s := NewServer(projector, dispatcher, reader)
	s.SetMetrics(reg, metrics.NewRecorder(reg))

	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, reg: reg, events: repo}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/healthz")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])
}

func TestStories_ListsProgress(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/stories")

	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[StoryListResponse](t, resp)
	require.Len(t, body.Stories, 2)
	assert.Equal(t, "S-1", body.Stories[0].StoryID)
	assert.Equal(t, "full", body.Stories[0].Template)
	assert.Equal(t, 8, body.Stories[0].Progress.Total)
	assert.Empty(t, body.Stories[0].Stages)
	assert.Empty(t, body.Errors)
}

func TestStages_ReturnsViews(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/stories/S-1/stages")

	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	body := decode[StoryResponse](t, resp)
	require.Len(t, body.Stages, 8)
	assert.True(t, now.Equal(body.ComputedAt))

	implement := body.Stages[3]
	assert.Equal(t, "implement", implement.ID)
	assert.Equal(t, "failed", implement.Status)
	var ids []string
	for _, a := range implement.Actions {
		ids = append(ids, a.ID)
	}
	assert.Contains(t, ids, "retry-step")
	assert.Equal(t, "implement", body.Progress.Current)
}

func TestStages_UnknownStory(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/stories/S-404/stages")

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, decode[ErrorResponse](t, resp).Error, "story not found")
}

func TestAction_AppendsEventAndReprojects(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.srv.URL+"/stories/S-1/stages/impl/actions/retry-step",
		"application/json", strings.NewReader(`{"actor":"alice"}`))

	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	result := decode[ActionResultResponse](t, resp)
	assert.Equal(t, "retry-step", result.Action)
	assert.Equal(t, "implement", result.Stage)
	assert.Equal(t, "append-event", result.Mutation)
	assert.NotEmpty(t, result.EventID)

	events, err := f.events.ListByStory(context.Background(), "S-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "alice", events[0].Actor)

	resp, err = http.Get(f.srv.URL + "/stories/S-1/stages")
	require.NoError(t, err)
	body := decode[StoryResponse](t, resp)
	assert.Equal(t, "active", body.Stages[3].Status)
	assert.Equal(t, 60.0, body.Stages[3].ElapsedSeconds)
}

func TestAction_PatchesSnapshot(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.srv.URL+"/stories/S-2/stages/triage/actions/approve-triage", "", nil)

	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	result := decode[ActionResultResponse](t, resp)
	assert.Equal(t, "patch-snapshot", result.Mutation)
	assert.Empty(t, result.EventID)

	resp, err = http.Get(f.srv.URL + "/stories/S-2/stages")
	require.NoError(t, err)
	body := decode[StoryResponse](t, resp)
	assert.Equal(t, "passed", body.Stages[0].Status)
}

func TestAction_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown stage", "/stories/S-1/stages/lint/actions/retry-step", "", http.StatusBadRequest},
		{"unknown action", "/stories/S-1/stages/implement/actions/explode", "", http.StatusBadRequest},
		{"wrong stage", "/stories/S-1/stages/test/actions/merge-pr", "", http.StatusBadRequest},
		{"unknown story", "/stories/S-404/stages/triage/actions/approve-triage", "", http.StatusNotFound},
		{"unknown story event", "/stories/S-404/stages/implement/actions/retry-step", "", http.StatusNotFound},
		{"bad body", "/stories/S-1/stages/implement/actions/retry-step", "{", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			resp, err := http.Post(f.srv.URL+tt.path, "application/json", strings.NewReader(tt.body))

			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.NotEmpty(t, decode[ErrorResponse](t, resp).Error)
		})
	}
}

func TestAction_UnknownStoryStoresNoEvent(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.srv.URL+"/stories/S-404/stages/implement/actions/cancel-step", "", nil)

	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	events, err := f.events.ListByStory(context.Background(), "S-404", 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAction_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/stories/S-1/stages/implement/actions/retry-step")

	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAction_NoDispatcher(t *testing.T) {
	s := NewServer(nil, nil, nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stories/S-1/stages/test/actions/skip-step", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetrics_Endpoint(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Post(f.srv.URL+"/stories/S-1/stages/implement/actions/retry-step", "", nil)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(f.srv.URL + "/metrics")

	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `storyflow_actions_total{action="retry-step",result="ok"} 1`)
}

func TestStatusFor_Unknown(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(lifecycle.ErrNoBackend))
}
