package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyflow/internal/status"
)

// sample returns the value of the series in family name whose labels match.
func sample(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want == lp.GetValue() {
					matched++
				}
			}
			if matched != len(labels) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("no sample %s%v", name, labels)
	return 0
}

func TestRecorder_Projections(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveProjection(nil)
	r.ObserveProjection(nil)
	r.ObserveProjection(errors.New("boom"))
	r.ObserveRefresh(120 * time.Millisecond)

	assert.Equal(t, 2.0, sample(t, reg, "storyflow_refreshes_total", map[string]string{"result": "ok"}))
	assert.Equal(t, 1.0, sample(t, reg, "storyflow_refreshes_total", map[string]string{"result": "error"}))
	assert.Equal(t, 1.0, sample(t, reg, "storyflow_refresh_duration_seconds", nil))
}

func TestRecorder_SetStatusCounts_ZeroesMissing(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.SetStatusCounts(map[status.Status]int{status.StatusFailed: 2, status.StatusPassed: 5})
	r.SetStatusCounts(map[status.Status]int{status.StatusPassed: 6})

	assert.Equal(t, 6.0, sample(t, reg, "storyflow_stages", map[string]string{"status": "passed"}))
	assert.Equal(t, 0.0, sample(t, reg, "storyflow_stages", map[string]string{"status": "failed"}))
	assert.Equal(t, 0.0, sample(t, reg, "storyflow_stages", map[string]string{"status": "timed_out"}))
}

func TestRecorder_TransitionsAndActions(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.SetProgress("S-1", 50)
	r.ObserveTransition("implement", status.StatusFailed)
	r.ObserveNotification(nil)
	r.ObserveAction("retry-step", nil)
	r.ObserveAction("retry-step", errors.New("unknown stage"))

	assert.Equal(t, 50.0, sample(t, reg, "storyflow_story_progress_percent", map[string]string{"story": "S-1"}))
	assert.Equal(t, 1.0, sample(t, reg, "storyflow_stage_transitions_total",
		map[string]string{"stage": "implement", "status": "failed"}))
	assert.Equal(t, 1.0, sample(t, reg, "storyflow_notifications_total", map[string]string{"result": "ok"}))
	assert.Equal(t, 1.0, sample(t, reg, "storyflow_actions_total",
		map[string]string{"action": "retry-step", "result": "error"}))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.ObserveProjection(nil)
		r.ObserveRefresh(time.Second)
		r.SetStatusCounts(nil)
		r.SetProgress("S-1", 10)
		r.ObserveTransition("plan", status.StatusPassed)
		r.ObserveNotification(nil)
		r.ObserveAction("skip-step", nil)
	})
}

func TestNewRecorder_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRecorder(reg)

	assert.Panics(t, func() { NewRecorder(reg) })
}
