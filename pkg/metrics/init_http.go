package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RouteOther labels any path the trigger and watch servers do not serve
const RouteOther = "other"

// routes are the only paths that get their own label value. The trigger port
// is reachable from the pool network, so unknown paths must not create series.
var routes = map[string]bool{
	"/failover": true,
	"/health":   true,
	"/ready":    true,
	"/live":     true,
	"/metrics":  true,
}

// RouteLabel maps a request path onto a bounded label value
func RouteLabel(path string) string {
	if routes[path] {
		return path
	}
	return RouteOther
}

// Promotion calls are bounded by pgpool's curl timeout, so nothing slower
// than a few seconds is interesting.
var httpBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

func (r *Registry) initHTTPMetrics() {
	f := promauto.With(r.registry)

	r.HTTPRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgha_http_requests_total",
			Help: "Requests served by the trigger and watch endpoints",
		},
		[]string{"method", "route", "status"},
	)

	r.HTTPRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgha_http_request_duration_seconds",
			Help:    "Time to answer a trigger or watch endpoint request",
			Buckets: httpBuckets,
		},
		[]string{"method", "route", "status"},
	)

	r.HTTPRequestsInFlight = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgha_http_requests_in_flight",
			Help: "Trigger and watch endpoint requests being answered",
		},
	)
}
