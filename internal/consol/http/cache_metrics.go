package http

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/odyssey-budget/internal/consol"
)

var cacheLabels = []string{"report", "company"}

// cacheMetrics counts in-memory hits and timed builds per report kind. A nil
// value records nothing.
type cacheMetrics struct {
	hits   *prometheus.CounterVec
	misses *prometheus.CounterVec
	build  *prometheus.HistogramVec
}

// WithMetrics registers the report cache collectors on reg. Collectors already
// present on reg are reused so several handlers can share one registry.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(h *Handler) {
		if reg == nil {
			return
		}
		h.metrics = &cacheMetrics{
			hits: reuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "odyssey_consol_report_cache_hits_total",
				Help: "Consolidated reports served from memory.",
			}, cacheLabels)),
			misses: reuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "odyssey_consol_report_cache_miss_total",
				Help: "Consolidated reports that had to be built.",
			}, cacheLabels)),
			build: reuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "odyssey_consol_report_build_duration_seconds",
				Help:    "Time spent building consolidated reports.",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			}, cacheLabels)),
		}
	}
}

func reuse[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	err := reg.Register(c)
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing
		}
	}
	return c
}

func (m *cacheMetrics) hit(kind consol.Kind, f consol.Filters) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(string(kind), f.Company).Inc()
}

func (m *cacheMetrics) miss(kind consol.Kind, f consol.Filters) {
	if m == nil {
		return
	}
	m.misses.WithLabelValues(string(kind), f.Company).Inc()
}

func (m *cacheMetrics) observe(kind consol.Kind, f consol.Filters, d time.Duration) {
	if m == nil {
		return
	}
	m.build.WithLabelValues(string(kind), f.Company).Observe(d.Seconds())
}
