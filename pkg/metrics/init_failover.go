package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initFailoverMetrics() {
	r.PromotionRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgha_promotion_requests_total",
			Help: "Promotion requests received by the trigger endpoint",
		},
		[]string{"result"}, // promoted, duplicate, unauthorized, error
	)

	r.TriggerCallsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgha_trigger_calls_total",
			Help: "Promotion requests sent to a node's trigger endpoint",
		},
		[]string{"result"}, // success, rejected, error
	)

	r.FailoversTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgha_failovers_total",
			Help: "Total number of failover handler runs",
		},
		[]string{"result"}, // promoted, promotion_failed
	)

	r.FailoverDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pgha_failover_duration_seconds",
			Help:    "Duration of failover handler runs in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
	)

	r.ReattachAttemptsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgha_reattach_attempts_total",
			Help: "Attempts to reattach a node to the pool",
		},
		[]string{"result"}, // attached, unreachable, command_error
	)

	r.ReattachScheduledTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgha_reattach_scheduled_total",
			Help: "Delayed reattach attempts handed to a scheduler",
		},
		[]string{"scheduler"}, // timer, process
	)

	r.SplitBrainSuspectedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "pgha_split_brain_suspected_total",
			Help: "Reattach targets found reachable and not in recovery",
		},
	)
}
