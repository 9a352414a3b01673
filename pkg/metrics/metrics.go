package metrics

import (
	"runtime"
	"time"
)

// RecordHTTPRequest records an HTTP request with its duration. path is
// reduced to its route label first.
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	route := RouteLabel(path)
	r.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// RecordProbe records a single health probe against target
func (r *Registry) RecordProbe(target, outcome string, duration time.Duration) {
	r.ProbesTotal.WithLabelValues(target, outcome).Inc()
	r.ProbeDuration.WithLabelValues(target).Observe(duration.Seconds())
}

// RecordPeerWait records the outcome of a bounded wait for the peer
func (r *Registry) RecordPeerWait(outcome string, duration time.Duration) {
	r.PeerWaitsTotal.WithLabelValues(outcome).Inc()
	r.PeerWaitDuration.Observe(duration.Seconds())
}

// SetPeerHealth publishes the detector's view of the watched node
func (r *Registry) SetPeerHealth(up bool, consecutiveFailures int) {
	if up {
		r.PeerUp.Set(1)
	} else {
		r.PeerUp.Set(0)
	}
	r.PeerConsecutiveFailures.Set(float64(consecutiveFailures))
}

// RecordFailover records a failover handler run
func (r *Registry) RecordFailover(result string, duration time.Duration) {
	r.FailoversTotal.WithLabelValues(result).Inc()
	r.FailoverDuration.Observe(duration.Seconds())
}

// RecordBootstrap records a sync or init run of the data directory
func (r *Registry) RecordBootstrap(kind, result string, duration time.Duration) {
	r.BootstrapsTotal.WithLabelValues(kind, result).Inc()
	r.BootstrapDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// SetNodeRole sets the effective role of this node
func (r *Registry) SetNodeRole(role string) {
	// Reset all roles
	r.NodeRole.WithLabelValues("primary").Set(0)
	r.NodeRole.WithLabelValues("standby").Set(0)

	// Set current role
	r.NodeRole.WithLabelValues(role).Set(1)
}

// UpdateSystemMetrics refreshes uptime and Go runtime gauges
func (r *Registry) UpdateSystemMetrics(startTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.UptimeSeconds.Set(time.Since(startTime).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	r.MemoryAllocBytes.Set(float64(m.Alloc))
	r.MemorySysBytes.Set(float64(m.Sys))
}
