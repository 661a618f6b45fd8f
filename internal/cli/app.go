// Package cli implements the storyflow command tree.
//
// Commands share an [App] that lazily opens the stories file and the event
// database from [config.Config], so tests can inject a config that points at
// temporary files.
package cli

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"storyflow/internal/config"
	"storyflow/internal/engine"
	"storyflow/internal/lifecycle"
	"storyflow/internal/manifest"
	"storyflow/internal/metrics"
	"storyflow/internal/notify"
	"storyflow/internal/output"
	"storyflow/internal/pipeline"
	"storyflow/internal/refresh"
	"storyflow/internal/snapshot"
	"storyflow/internal/store"
)

// App holds the dependencies shared by every command.
type App struct {
	Config  *config.Config
	Printer *output.Printer
	Logger  *zap.Logger

	// Clock stamps projections and dispatched events. Defaults to time.Now.
	Clock lifecycle.Clock

	// BasePath anchors stories file discovery. Defaults to ".".
	BasePath string

	catalog *pipeline.Catalog
	reader  *snapshot.Reader
	db      *sql.DB
	events  *store.EventRepo
}

// NewApp creates an [App] printing to stdout with a no-op logger.
func NewApp(cfg *config.Config) *App {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &App{
		Config:   cfg,
		Printer:  output.NewPrinter(),
		Logger:   zap.NewNop(),
		Clock:    time.Now,
		BasePath: ".",
	}
}

// Catalog builds the step catalog: default stages, configured timeouts and
// manifest templates.
func (a *App) Catalog() (*pipeline.Catalog, error) {
	if a.catalog != nil {
		return a.catalog, nil
	}

	timeouts, err := a.Config.StageTimeouts()
	if err != nil {
		return nil, err
	}
	c := pipeline.Default().WithTimeouts(timeouts)

	if path := a.Config.Pipeline.ManifestPath; path != "" {
		m, err := manifest.ReadFromFile(path)
		if err != nil {
			return nil, err
		}
		c = m.Apply(c)
	}

	a.catalog = c
	return c, nil
}

// Snapshots returns the stories file reader.
func (a *App) Snapshots() *snapshot.Reader {
	if a.reader == nil {
		a.reader = snapshot.NewReaderWithPath(a.BasePath, a.Config.Snapshots.Path)
	}
	return a.reader
}

// Events opens the event database on first use.
func (a *App) Events() (*store.EventRepo, error) {
	if a.events != nil {
		return a.events, nil
	}
	db, err := store.NewDB(a.Config.Store.Path)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.events = store.NewEventRepo(db)
	return a.events, nil
}

// Projector wires the snapshot reader, event log and catalog.
func (a *App) Projector() (*lifecycle.Projector, error) {
	c, err := a.Catalog()
	if err != nil {
		return nil, err
	}
	events, err := a.Events()
	if err != nil {
		return nil, err
	}

	p := lifecycle.NewProjector(a.Snapshots(), events)
	p.SetEngine(engine.New(c))
	p.SetClock(a.Clock)
	p.SetEventLimit(a.Config.Refresh.EventLimit)
	p.SetDefaultTemplate(a.Config.Pipeline.Template)
	return p, nil
}

// Dispatcher wires the event log and the stories file writer.
func (a *App) Dispatcher() (*lifecycle.Dispatcher, error) {
	events, err := a.Events()
	if err != nil {
		return nil, err
	}
	d := lifecycle.NewDispatcher(events, snapshot.NewWriter(a.Snapshots().Path()))
	d.SetStoryReader(a.Snapshots())
	d.SetClock(a.Clock)
	return d, nil
}

// Scheduler builds the refresh loop, with webhook notifications when a
// webhook is configured. rec may be nil.
func (a *App) Scheduler(stories []string, rec *metrics.Recorder) (*refresh.Scheduler, error) {
	p, err := a.Projector()
	if err != nil {
		return nil, err
	}
	if len(stories) == 0 {
		stories = a.Config.Refresh.Stories
	}

	s := refresh.New(p, a.Snapshots(), refresh.Options{
		Interval:    a.Config.Refresh.Interval,
		Stories:     stories,
		Concurrency: a.Config.Refresh.Concurrency,
	})
	s.SetLogger(a.Logger)
	s.SetMetrics(rec)

	if url := a.Config.Notify.WebhookURL; url != "" {
		targets, err := a.Config.NotifyStatuses()
		if err != nil {
			return nil, err
		}
		s.SetNotifier(notify.NewWebhookNotifier(url, a.Config.Notify.MaxRetries, a.Config.Notify.Timeout), targets)
	}
	return s, nil
}

// Close releases the event database.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db, a.events = nil, nil
	if err != nil {
		return fmt.Errorf("failed to close event store: %w", err)
	}
	return nil
}
