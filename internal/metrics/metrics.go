package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"convconv/internal/entity"
)

const (
	namespace = "convconv"

	jobsFinishedTotal  = "jobs_finished_total"
	jobDurationSeconds = "job_duration_seconds"
	jobsRunning        = "jobs_running"
	eventsSentTotal    = "events_sent_total"

	// Labels
	statusLabel    = "status"
	eventTypeLabel = "type"
)

var jobDurationBuckets = []float64{1, 5, 15, 30, 60, 300, 900, 3600}

// Metrics holds the job and event collectors. A nil *Metrics is a no-op.
type Metrics struct {
	finished *prometheus.CounterVec
	duration *prometheus.HistogramVec
	running  prometheus.Gauge
	events   *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		finished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      jobsFinishedTotal,
				Help:      "number of jobs that reached a terminal status",
			},
			[]string{statusLabel},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      jobDurationSeconds,
				Help:      "wall time from job start to its terminal status",
				Buckets:   jobDurationBuckets,
			},
			[]string{statusLabel},
		),
		running: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      jobsRunning,
				Help:      "number of job goroutines currently alive",
			},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      eventsSentTotal,
				Help:      "number of event frames delivered to subscribers",
			},
			[]string{eventTypeLabel},
		),
	}
}

func (m *Metrics) JobFinished(status entity.JobStatus, elapsed time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{statusLabel: string(status)}
	m.finished.With(labels).Inc()
	m.duration.With(labels).Observe(elapsed.Seconds())
}

func (m *Metrics) EventSent(eventType string, delivered int) {
	if m == nil || delivered <= 0 {
		return
	}
	m.events.With(prometheus.Labels{eventTypeLabel: eventType}).Add(float64(delivered))
}

func (m *Metrics) Inc() {
	if m == nil {
		return
	}
	m.running.Inc()
}

func (m *Metrics) Dec() {
	if m == nil {
		return
	}
	m.running.Dec()
}

// Collectors returns the collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.finished, m.duration, m.running, m.events}
}

// MustRegister registers the job collectors and any extra collectors on reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer, extra ...prometheus.Collector) {
	reg.MustRegister(m.Collectors()...)
	reg.MustRegister(extra...)
}
