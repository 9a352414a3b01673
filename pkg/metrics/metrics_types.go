package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the application
type Registry struct {
	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Probe Metrics
	ProbesTotal   *prometheus.CounterVec
	ProbeDuration *prometheus.HistogramVec

	// Monitor Metrics
	PeerWaitsTotal          *prometheus.CounterVec
	PeerWaitDuration        prometheus.Histogram
	PeerConsecutiveFailures prometheus.Gauge
	PeerUp                  prometheus.Gauge
	FailureDecisionsTotal   prometheus.Counter

	// Promotion Metrics
	PromotionRequestsTotal *prometheus.CounterVec
	TriggerCallsTotal      *prometheus.CounterVec

	// Failover Metrics
	FailoversTotal   *prometheus.CounterVec
	FailoverDuration prometheus.Histogram

	// Repair Metrics
	ReattachAttemptsTotal    *prometheus.CounterVec
	ReattachScheduledTotal   *prometheus.CounterVec
	SplitBrainSuspectedTotal prometheus.Counter

	// Bootstrap Metrics
	BootstrapsTotal   *prometheus.CounterVec
	BootstrapDuration *prometheus.HistogramVec
	NodeRole          *prometheus.GaugeVec

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	// Initialize all metrics
	r.initHTTPMetrics()
	r.initProbeMetrics()
	r.initMonitorMetrics()
	r.initFailoverMetrics()
	r.initBootstrapMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
