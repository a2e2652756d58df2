package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"convconv/internal/entity"
)

// StatusCounter reports how many jobs are in each status.
type StatusCounter interface {
	CountByStatus() map[entity.JobStatus]int
}

type jobStatusCollector struct {
	jobs     StatusCounter
	byStatus *prometheus.Desc
}

// NewJobStatusCollector exposes the registry's per-status job counts at scrape time.
func NewJobStatusCollector(jobs StatusCounter) prometheus.Collector {
	return &jobStatusCollector{
		jobs: jobs,
		byStatus: prometheus.NewDesc(
			fmt.Sprintf("%s_jobs", namespace),
			"Number of registered jobs by status.",
			[]string{statusLabel},
			prometheus.Labels{},
		),
	}
}

func (c *jobStatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.byStatus
}

// Collect implements Collector.
func (c *jobStatusCollector) Collect(ch chan<- prometheus.Metric) {
	for status, total := range c.jobs.CountByStatus() {
		ch <- prometheus.MustNewConstMetric(c.byStatus, prometheus.GaugeValue, float64(total), string(status))
	}
}
