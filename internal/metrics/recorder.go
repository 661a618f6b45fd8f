// Package metrics exposes Prometheus collectors for the refresh loop, stage
// statuses, transitions and operator actions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"storyflow/internal/status"
)

// Namespace prefixes every storyflow metric.
const Namespace = "storyflow"

// Recorder records storyflow metrics. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	stages          *prometheus.GaugeVec
	progress        *prometheus.GaugeVec
	transitions     *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	actions         *prometheus.CounterVec
}

// NewRecorder registers the storyflow collectors with reg. A nil reg means
// [prometheus.DefaultRegisterer].
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		refreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "refreshes_total",
				Help:      "Story projections computed by the refresh loop, by result",
			},
			[]string{"result"},
		),
		refreshDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "refresh_duration_seconds",
				Help:      "Time spent on one refresh of every watched story",
				Buckets:   prometheus.DefBuckets,
			},
		),
		stages: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "stages",
				Help:      "Stages across watched stories by displayed status",
			},
			[]string{"status"},
		),
		progress: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "story_progress_percent",
				Help:      "Share of passed or skipped stages per story (0-100)",
			},
			[]string{"story"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "stage_transitions_total",
				Help:      "Observed stage status changes between refreshes",
			},
			[]string{"stage", "status"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "notifications_total",
				Help:      "Transition notifications by delivery result",
			},
			[]string{"result"},
		),
		actions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "actions_total",
				Help:      "Dispatched operator actions by action and result",
			},
			[]string{"action", "result"},
		),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveProjection counts one story projection.
func (r *Recorder) ObserveProjection(err error) {
	if r == nil {
		return
	}
	r.refreshes.WithLabelValues(result(err)).Inc()
}

// ObserveRefresh records the duration of a full refresh.
func (r *Recorder) ObserveRefresh(d time.Duration) {
	if r == nil {
		return
	}
	r.refreshDuration.Observe(d.Seconds())
}

// SetStatusCounts replaces the per-status stage gauges. Statuses missing
// from counts are set to zero.
func (r *Recorder) SetStatusCounts(counts map[status.Status]int) {
	if r == nil {
		return
	}
	for _, st := range status.All() {
		r.stages.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
}

// SetProgress records a story's completion percentage.
func (r *Recorder) SetProgress(storyID string, percent int) {
	if r == nil {
		return
	}
	r.progress.WithLabelValues(storyID).Set(float64(percent))
}

// ObserveTransition counts a stage moving into a status.
func (r *Recorder) ObserveTransition(stage string, to status.Status) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(stage, string(to)).Inc()
}

// ObserveNotification counts one notification delivery.
func (r *Recorder) ObserveNotification(err error) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(result(err)).Inc()
}

// ObserveAction counts one dispatched action.
func (r *Recorder) ObserveAction(action string, err error) {
	if r == nil {
		return
	}
	r.actions.WithLabelValues(action, result(err)).Inc()
}
