package wiring

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of one runtime. A nil *Metrics
// records nothing.
type Metrics struct {
	created         *prometheus.CounterVec   // by scope
	failures        *prometheus.CounterVec   // by component
	creation        *prometheus.HistogramVec // by scope
	destroyed       prometheus.Counter
	destroyFailures *prometheus.CounterVec // by component
	inCreation      prometheus.Gauge
}

// NewMetrics creates the runtime collectors and registers them with reg.
// Collectors already registered by another runtime with the same namespace
// are shared.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "components",
			Name:      "created_total",
			Help:      "Total number of component instances created",
		}, []string{"scope"}),

		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "components",
			Name:      "creation_failures_total",
			Help:      "Total number of failed component creations",
		}, []string{"component"}),

		creation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "components",
			Name:      "creation_duration_seconds",
			Help:      "Component creation duration in seconds, including nested dependencies",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1.0, 5.0},
		}, []string{"scope"}),

		destroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "components",
			Name:      "destroyed_total",
			Help:      "Total number of component instances destroyed",
		}),

		destroyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "components",
			Name:      "destroy_failures_total",
			Help:      "Total number of failed component destructions",
		}, []string{"component"}),

		inCreation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "components",
			Name:      "in_creation",
			Help:      "Number of components currently being created",
		}),
	}

	var err error
	if m.created, err = register(reg, m.created); err != nil {
		return nil, err
	}
	if m.failures, err = register(reg, m.failures); err != nil {
		return nil, err
	}
	if m.creation, err = register(reg, m.creation); err != nil {
		return nil, err
	}
	if m.destroyed, err = register(reg, m.destroyed); err != nil {
		return nil, err
	}
	if m.destroyFailures, err = register(reg, m.destroyFailures); err != nil {
		return nil, err
	}
	if m.inCreation, err = register(reg, m.inCreation); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) creationStarted() {
	if m == nil {
		return
	}
	m.inCreation.Inc()
}

func (m *Metrics) recordCreation(id string, scope Scope, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.inCreation.Dec()
	if err != nil {
		m.failures.WithLabelValues(id).Inc()
		return
	}
	m.created.WithLabelValues(string(scope)).Inc()
	m.creation.WithLabelValues(string(scope)).Observe(duration.Seconds())
}

func (m *Metrics) recordDestroy(id string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.destroyFailures.WithLabelValues(id).Inc()
		return
	}
	m.destroyed.Inc()
}
