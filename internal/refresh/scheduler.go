// Package refresh recomputes story projections on a fixed cadence.
//
// Each tick projects every watched story in parallel, keeps the latest
// projection per story, and reports stage transitions to a notifier. There is
// no push channel: consumers read [Scheduler.Latest] or register a callback
// with [Scheduler.OnRefresh].
package refresh

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storyflow/internal/lifecycle"
	"storyflow/internal/logging"
	"storyflow/internal/metrics"
	"storyflow/internal/notify"
	"storyflow/internal/status"
)

// DefaultInterval is the reference refresh cadence.
const DefaultInterval = 15 * time.Second

// Projector computes one story's projection.
type Projector interface {
	Project(ctx context.Context, storyID string) (lifecycle.Projection, error)
}

// StoryLister enumerates the stories available for watching.
type StoryLister interface {
	List() ([]string, error)
}

// Options configures a [Scheduler].
type Options struct {
	// Interval between refreshes. Zero means [DefaultInterval].
	Interval time.Duration

	// Stories restricts refreshes to these ids. Empty means every id the
	// lister returns.
	Stories []string

	// Concurrency caps parallel projections. Zero means 1.
	Concurrency int
}

// Report summarizes one refresh.
type Report struct {
	Stories     int
	Failed      int
	Transitions []notify.Transition
	Duration    time.Duration
}

// Scheduler drives the refresh loop.
type Scheduler struct {
	projector Projector
	lister    StoryLister
	opts      Options

	notifier notify.Notifier
	filter   notify.Filter
	metrics  *metrics.Recorder
	logger   *zap.Logger
	onTick   func(Report)

	mu     sync.RWMutex
	latest map[string]lifecycle.Projection

	// pending tracks in-flight notifications.
	pending sync.WaitGroup
}

// New creates a [Scheduler]. lister may be nil when opts.Stories is set.
func New(projector Projector, lister StoryLister, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Scheduler{
		projector: projector,
		lister:    lister,
		opts:      opts,
		logger:    zap.NewNop(),
		latest:    make(map[string]lifecycle.Projection),
	}
}

// SetNotifier sends transitions into any of targets to n.
func (s *Scheduler) SetNotifier(n notify.Notifier, targets []status.Status) {
	s.notifier = n
	s.filter = notify.NewFilter(targets)
}

// SetMetrics attaches a metrics recorder.
func (s *Scheduler) SetMetrics(r *metrics.Recorder) {
	s.metrics = r
}

// SetLogger replaces the no-op logger.
func (s *Scheduler) SetLogger(l *zap.Logger) {
	s.logger = logging.OrNop(l)
}

// OnRefresh registers fn to run after every refresh.
func (s *Scheduler) OnRefresh(fn func(Report)) {
	s.onTick = fn
}

// Interval returns the effective refresh cadence.
func (s *Scheduler) Interval() time.Duration {
	return s.opts.Interval
}

// Run refreshes immediately and then on every tick until ctx is done.
// Refresh errors are logged; Run only returns when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("refresh loop started", zap.Duration("interval", s.opts.Interval))
	defer s.logger.Info("refresh loop stopped")

	s.tick(ctx)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.pending.Wait()
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("refresh failed", zap.Error(err))
	}
}

// RunOnce projects every watched story once.
//
// A story that fails to project keeps its previous projection and is
// counted in [Report.Failed]; only failing to enumerate stories is an error.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()

	ids, err := s.storyIDs()
	if err != nil {
		return Report{}, err
	}

	results := make([]lifecycle.Projection, len(ids))
	errs := make([]error, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			results[i], errs[i] = s.projector.Project(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Stories: len(ids)}
	counts := make(map[status.Status]int)

	s.mu.Lock()
	watched := make(map[string]bool, len(ids))
	for i, id := range ids {
		watched[id] = true
		s.metrics.ObserveProjection(errs[i])
		if errs[i] != nil {
			report.Failed++
			s.logger.Warn("projection failed", zap.String("story", id), zap.Error(errs[i]))
			continue
		}

		next := results[i]
		if prev, ok := s.latest[id]; ok {
			report.Transitions = append(report.Transitions,
				notify.Diff(id, prev.Views, next.Views, next.ComputedAt)...)
		}
		s.latest[id] = next

		for _, v := range next.Views {
			counts[v.Status]++
		}
		s.metrics.SetProgress(id, next.Progress.Percent())
	}
	for id := range s.latest {
		if !watched[id] {
			delete(s.latest, id)
		}
	}
	s.mu.Unlock()

	s.metrics.SetStatusCounts(counts)
	for _, t := range report.Transitions {
		s.metrics.ObserveTransition(string(t.Stage), t.To)
		s.logger.Info("stage transition",
			zap.String("story", t.StoryID),
			zap.String("stage", string(t.Stage)),
			zap.String("from", string(t.From)),
			zap.String("to", string(t.To)))
	}
	s.dispatch(ctx, report.Transitions)

	report.Duration = time.Since(start)
	s.metrics.ObserveRefresh(report.Duration)
	s.logger.Debug("refresh complete",
		zap.Int("stories", report.Stories),
		zap.Int("failed", report.Failed),
		zap.Int("transitions", len(report.Transitions)),
		zap.Duration("duration", report.Duration))

	if s.onTick != nil {
		s.onTick(report)
	}
	return report, nil
}

// dispatch delivers matching transitions in the background so a slow
// webhook never delays the next refresh.
func (s *Scheduler) dispatch(ctx context.Context, ts []notify.Transition) {
	if s.notifier == nil {
		return
	}
	matched := s.filter.Apply(ts)
	if len(matched) == 0 {
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		for _, t := range matched {
			err := s.notifier.Notify(context.WithoutCancel(ctx), t)
			s.metrics.ObserveNotification(err)
			if err != nil {
				s.logger.Warn("notification failed", zap.String("story", t.StoryID), zap.Error(err))
			}
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (s *Scheduler) Wait() {
	s.pending.Wait()
}

func (s *Scheduler) storyIDs() ([]string, error) {
	if len(s.opts.Stories) > 0 {
		return s.opts.Stories, nil
	}
	if s.lister == nil {
		return nil, fmt.Errorf("no stories configured and no story lister")
	}
	ids, err := s.lister.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	return ids, nil
}

// Latest returns the most recent projection of a story.
func (s *Scheduler) Latest(storyID string) (lifecycle.Projection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.latest[storyID]
	return p, ok
}

// All returns the latest projections sorted by story id.
func (s *Scheduler) All() []lifecycle.Projection {
	s.mu.RLock()
	out := make([]lifecycle.Projection, 0, len(s.latest))
	for _, p := range s.latest {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StoryID < out[j].StoryID })
	return out
}
