package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convconv/internal/entity"
	"convconv/internal/metrics"
)

type staticCounter map[entity.JobStatus]int

func (c staticCounter) CountByStatus() map[entity.JobStatus]int { return c }

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

// value returns the counter, gauge or histogram-count of the series whose labels match.
func value(f *dto.MetricFamily, labels map[string]string) float64 {
	for _, m := range f.GetMetric() {
		if !matches(m, labels) {
			continue
		}
		switch {
		case m.Counter != nil:
			return m.GetCounter().GetValue()
		case m.Gauge != nil:
			return m.GetGauge().GetValue()
		case m.Histogram != nil:
			return float64(m.GetHistogram().GetSampleCount())
		}
	}
	return -1
}

func matches(m *dto.Metric, labels map[string]string) bool {
	for name, want := range labels {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == name && lp.GetValue() == want {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestMetrics_Jobs(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New()
	m.MustRegister(reg, metrics.NewJobStatusCollector(staticCounter{
		entity.StatusPending:   2,
		entity.StatusCompleted: 5,
	}))

	m.Inc()
	m.Inc()
	m.Dec()
	m.JobFinished(entity.StatusCompleted, 3*time.Second)
	m.JobFinished(entity.StatusCompleted, time.Second)
	m.JobFinished(entity.StatusFailed, time.Second)
	m.EventSent("progress", 3)
	m.EventSent("progress", 0)
	m.EventSent("complete", 1)

	families := gather(t, reg)
	assert.Equal(t, 1.0, value(families["convconv_jobs_running"], nil))
	assert.Equal(t, 2.0, value(families["convconv_jobs_finished_total"], map[string]string{"status": "completed"}))
	assert.Equal(t, 1.0, value(families["convconv_jobs_finished_total"], map[string]string{"status": "failed"}))
	assert.Equal(t, 3.0, value(families["convconv_job_duration_seconds"], map[string]string{"status": "completed"}))
	assert.Equal(t, 3.0, value(families["convconv_events_sent_total"], map[string]string{"type": "progress"}))
	assert.Equal(t, 1.0, value(families["convconv_events_sent_total"], map[string]string{"type": "complete"}))
	assert.Equal(t, 2.0, value(families["convconv_jobs"], map[string]string{"status": "pending"}))
	assert.Equal(t, 5.0, value(families["convconv_jobs"], map[string]string{"status": "completed"}))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.Inc()
		m.Dec()
		m.JobFinished(entity.StatusFailed, time.Second)
		m.EventSent("error", 1)
	})
}

func TestMiddleware_RoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	mw := metrics.NewMiddleware("convconv")
	reg.MustRegister(mw.Collectors()...)

	r := chi.NewRouter()
	r.Use(mw.Handler)
	r.Get("/api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/api/jobs/a", "/api/jobs/b", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	families := gather(t, reg)
	requests := families[metrics.RequestsCollectorName]
	require.NotNil(t, requests)
	assert.Equal(t, 2.0, value(requests, map[string]string{"path": "/api/jobs/{id}", "code": "404", "method": "GET", "service": "convconv"}))
	assert.Equal(t, 1.0, value(requests, map[string]string{"path": "unmatched"}))
}
