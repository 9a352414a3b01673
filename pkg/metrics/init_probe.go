package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initProbeMetrics() {
	r.ProbesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgha_probes_total",
			Help: "Total number of database health probes",
		},
		[]string{"target", "outcome"}, // primary, standby, connect_error, query_error
	)

	r.ProbeDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgha_probe_duration_seconds",
			Help:    "Duration of database health probes in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 3.0},
		},
		[]string{"target"},
	)
}
