// Package jobmetrics instruments asynq task handlers.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors shared by every task handler.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	warmed   *prometheus.CounterVec
}

var defaultMetrics = sync.OnceValue(func() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
})

// NewMetrics registers the job collectors on registerer. A nil registerer
// returns a process-wide instance registered on the default registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		return defaultMetrics()
	}
	return newMetrics(registerer)
}

func newMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_total",
			Help: "Task executions by task type and outcome.",
		}, []string{"job", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_job_duration_seconds",
			Help:    "Task execution time in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"job"}),
		warmed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_consol_reports_warmed_total",
			Help: "Consolidated reports rebuilt by background refreshes.",
		}, []string{"kind", "company"}),
	}
}

// Tracker times one task execution.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing an execution of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the outcome and returns err unchanged so handlers can
// `return tracker.End(err)`.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddWarmed counts reports of kind rebuilt for a root company.
func (m *Metrics) AddWarmed(kind, company string, count int) {
	if m == nil || count <= 0 {
		return
	}
	if company == "" {
		company = "unknown"
	}
	m.warmed.WithLabelValues(kind, company).Add(float64(count))
}
