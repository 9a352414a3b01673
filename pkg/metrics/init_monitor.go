package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initMonitorMetrics() {
	r.PeerWaitsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgha_peer_waits_total",
			Help: "Total number of bounded waits for the peer node",
		},
		[]string{"outcome"}, // up_primary, up_standby, timed_out
	)

	r.PeerWaitDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pgha_peer_wait_duration_seconds",
			Help:    "Time spent waiting for the peer node in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
	)

	r.PeerConsecutiveFailures = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "pgha_peer_consecutive_failures",
			Help: "Consecutive failed probes of the watched node",
		},
	)

	r.PeerUp = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "pgha_peer_up",
			Help: "Whether the last probe of the watched node succeeded (1=yes, 0=no)",
		},
	)

	r.FailureDecisionsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "pgha_failure_decisions_total",
			Help: "Total number of times the retry budget was exhausted",
		},
	)
}
