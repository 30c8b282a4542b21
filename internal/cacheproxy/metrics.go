package cacheproxy

import "github.com/prometheus/client_golang/prometheus"

// Metrics are shared by every proxy instance of a process, so that successive
// versions keep reporting into the same series.
type Metrics struct {
	transitions *prometheus.CounterVec
	writes      *prometheus.CounterVec
	sweeps      *prometheus.CounterVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "offcache",
				Name:      "lifecycle_transitions_total",
				Help:      "Number of proxy instances that reached each lifecycle state",
			},
			[]string{"state"},
		),
		writes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "offcache",
				Name:      "cache_writes_total",
				Help:      "Number of responses written to a cache generation",
			},
			[]string{"generation", "result"},
		),
		sweeps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "offcache",
				Name:      "generations_deleted_total",
				Help:      "Number of stale generations removed at activation",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(m.transitions, m.writes, m.sweeps)
	return m
}

func (m *Metrics) transitioned(state State) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state.String()).Inc()
}

func (m *Metrics) wrote(generation string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.writes.WithLabelValues(generation, result).Inc()
}

func (m *Metrics) swept(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.sweeps.WithLabelValues(result).Inc()
}
