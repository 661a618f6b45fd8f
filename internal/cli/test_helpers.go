package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"storyflow/internal/config"
	"storyflow/internal/output"
	"storyflow/internal/snapshot"
)

// testNow is the fixed clock used by command tests.
var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testEnv is an App bound to temporary files plus captured output.
type testEnv struct {
	App    *App
	Dir    string
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// newTestEnv writes storiesYAML to a temp stories file and returns an App
// pointing at it and at a temp event database.
func newTestEnv(t *testing.T, storiesYAML string) *testEnv {
	t.Helper()
	t.Setenv(snapshot.PathEnv, "")

	dir := t.TempDir()
	storiesPath := filepath.Join(dir, "stories.yaml")
	if storiesYAML != "" {
		writeTestFile(t, storiesPath, storiesYAML)
	}

	cfg := config.DefaultConfig()
	cfg.Snapshots.Path = storiesPath
	cfg.Store.Path = filepath.Join(dir, "events.db")
	cfg.Refresh.Interval = 10 * time.Millisecond

	out := &bytes.Buffer{}
	app := NewApp(cfg)
	app.Printer = output.NewPrinterWithWriter(out)
	app.Clock = func() time.Time { return testNow }
	app.BasePath = dir
	t.Cleanup(func() { app.Close() })

	return &testEnv{App: app, Dir: dir, Out: out, ErrOut: &bytes.Buffer{}}
}

// Run executes the command tree with args.
func (e *testEnv) Run(args ...string) ExecuteResult {
	return e.RunContext(context.Background(), args...)
}

// RunContext executes the command tree with args under ctx.
func (e *testEnv) RunContext(ctx context.Context, args ...string) ExecuteResult {
	return run(ctx, e.App, args, e.Out, e.ErrOut)
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
}
