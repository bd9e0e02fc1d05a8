package budget

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for budget enforcement.
type Metrics struct {
	decisions *prometheus.CounterVec
	overrides *prometheus.CounterVec
	retries   prometheus.Counter
}

// NewMetrics registers budget collectors. Collectors already registered on reg
// are reused. A nil registerer uses the default one.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_budget_decisions_total",
			Help: "Budget validation decisions by effective action.",
		}, []string{"action"}),
		overrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_budget_overrides_total",
			Help: "Blocking budget checks relaxed by an override.",
		}, []string{"override"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_budget_commit_retries_total",
			Help: "Document commits retried after a serialization conflict.",
		}),
	}
	if err := register(reg, &m.decisions); err != nil {
		return nil, err
	}
	if err := register(reg, &m.overrides); err != nil {
		return nil, err
	}
	if err := reg.Register(m.retries); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, fmt.Errorf("budget metrics: unexpected collector type %T", already.ExistingCollector)
		}
		m.retries = existing
	}
	return m, nil
}

func register(reg prometheus.Registerer, vec **prometheus.CounterVec) error {
	err := reg.Register(*vec)
	if err == nil {
		return nil
	}
	var already prometheus.AlreadyRegisteredError
	if !errors.As(err, &already) {
		return err
	}
	existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
	if !ok {
		return fmt.Errorf("budget metrics: unexpected collector type %T", already.ExistingCollector)
	}
	*vec = existing
	return nil
}

func (m *Metrics) observe(d Decision) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(d.Action)).Inc()
	for _, c := range d.Breakdown {
		if c.Override != OverrideNone {
			m.overrides.WithLabelValues(string(c.Override)).Inc()
		}
	}
}

func (m *Metrics) retried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}
