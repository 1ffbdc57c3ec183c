package manager

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"apphost/types"
)

var provisionBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var allStates = []types.ResourceState{
	types.StateIdle,
	types.StateStarting,
	types.StateRunning,
	types.StateFailed,
	types.StateStopping,
	types.StateStopped,
}

// Metrics records provisioning outcomes. A nil *Metrics records nothing.
type Metrics struct {
	provisionDuration *prometheus.HistogramVec
	provisionResults  *prometheus.CounterVec
	resourceState     *prometheus.GaugeVec
	ingressResults    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. Collectors
// that are already registered are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		provisionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "apphost",
			Subsystem: "orchestrator",
			Name:      "provision_duration_seconds",
			Help:      "Time taken to provision a resource",
			Buckets:   provisionBuckets,
		}, []string{"kind", "outcome"}),
		provisionResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apphost",
			Subsystem: "orchestrator",
			Name:      "provision_results_total",
			Help:      "Number of resource provisioning outcomes",
		}, []string{"kind", "outcome"}),
		resourceState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "apphost",
			Subsystem: "orchestrator",
			Name:      "resource_state",
			Help:      "1 for the current state of each resource, 0 otherwise",
		}, []string{"resource", "state"}),
		ingressResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apphost",
			Subsystem: "ingress",
			Name:      "registrations_total",
			Help:      "Number of ingress DNS registration outcomes",
		}, []string{"outcome"}),
	}

	m.provisionDuration = register(reg, m.provisionDuration)
	m.provisionResults = register(reg, m.provisionResults)
	m.resourceState = register(reg, m.resourceState)
	m.ingressResults = register(reg, m.ingressResults)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) observeProvision(kind types.ResourceKind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"kind": string(kind), "outcome": outcome}
	m.provisionResults.With(labels).Inc()
	m.provisionDuration.With(labels).Observe(d.Seconds())
}

func (m *Metrics) observeIngress(outcome string) {
	if m == nil {
		return
	}
	m.ingressResults.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// RecordState sets the state gauge of a resource. It matches the
// StateManager.OnChange signature.
func (m *Metrics) RecordState(status types.ResourceStatus) {
	if m == nil {
		return
	}
	for _, s := range allStates {
		v := 0.0
		if s == status.State {
			v = 1
		}
		m.resourceState.With(prometheus.Labels{"resource": status.Name, "state": string(s)}).Set(v)
	}
}
