package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initBootstrapMetrics() {
	r.BootstrapsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgha_bootstraps_total",
			Help: "Data directory bootstrap runs",
		},
		[]string{"kind", "result"}, // kind: sync, init
	)

	r.BootstrapDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgha_bootstrap_duration_seconds",
			Help:    "Duration of data directory bootstraps in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900},
		},
		[]string{"kind"},
	)

	r.NodeRole = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pgha_node_role",
			Help: "Effective role the node started with (1 for current role, 0 otherwise)",
		},
		[]string{"role"}, // primary, standby
	)
}
