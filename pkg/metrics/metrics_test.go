package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}

	// Verify all metrics are initialized
	if r.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal not initialized")
	}
	if r.ProbesTotal == nil {
		t.Error("ProbesTotal not initialized")
	}
	if r.FailureDecisionsTotal == nil {
		t.Error("FailureDecisionsTotal not initialized")
	}
	if r.ReattachAttemptsTotal == nil {
		t.Error("ReattachAttemptsTotal not initialized")
	}
	if r.BootstrapsTotal == nil {
		t.Error("BootstrapsTotal not initialized")
	}
	if r.registry == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	// Should return the same instance
	r1 := DefaultRegistry()
	r2 := DefaultRegistry()

	if r1 != r2 {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	r := NewRegistry()

	r.RecordHTTPRequest("GET", "/failover", "200", 100*time.Millisecond)
	r.RecordHTTPRequest("GET", "/failover", "409", 50*time.Millisecond)
	r.RecordHTTPRequest("GET", "/failover", "200", 20*time.Millisecond)

	counter, err := r.HTTPRequestsTotal.GetMetricWithLabelValues("GET", "/failover", "200")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}

	if got := counterValue(t, counter); got != 2 {
		t.Errorf("Counter value = %v, want 2", got)
	}
}

func TestRecordHTTPRequest_UnknownPathsShareOneSeries(t *testing.T) {
	r := NewRegistry()

	r.RecordHTTPRequest("GET", "/wp-login.php", "404", time.Millisecond)
	r.RecordHTTPRequest("POST", "/failover/../etc", "404", time.Millisecond)
	r.RecordHTTPRequest("GET", "/.env", "404", time.Millisecond)

	if got := counterValue(t, r.HTTPRequestsTotal.WithLabelValues("GET", RouteOther, "404")); got != 2 {
		t.Errorf("other GET = %v, want 2", got)
	}
	if got := RouteLabel("/ready"); got != "/ready" {
		t.Errorf("RouteLabel(/ready) = %q", got)
	}
}

func TestRecordProbe(t *testing.T) {
	r := NewRegistry()

	r.RecordProbe("postgresql_master", "primary", 5*time.Millisecond)
	r.RecordProbe("postgresql_master", "connect_error", 3*time.Second)
	r.RecordProbe("postgresql_master", "connect_error", 3*time.Second)

	if got := counterValue(t, r.ProbesTotal.WithLabelValues("postgresql_master", "connect_error")); got != 2 {
		t.Errorf("connect_error probes = %v, want 2", got)
	}
	if got := counterValue(t, r.ProbesTotal.WithLabelValues("postgresql_master", "primary")); got != 1 {
		t.Errorf("primary probes = %v, want 1", got)
	}

	hist, err := r.ProbeDuration.GetMetricWithLabelValues("postgresql_master")
	if err != nil {
		t.Fatalf("Failed to get histogram: %v", err)
	}
	var metric dto.Metric
	if err := hist.(prometheus.Histogram).Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 3 {
		t.Errorf("Sample count = %v, want 3", metric.Histogram.GetSampleCount())
	}
}

func TestSetPeerHealth(t *testing.T) {
	r := NewRegistry()

	r.SetPeerHealth(false, 3)
	if got := gaugeValue(t, r.PeerUp); got != 0 {
		t.Errorf("PeerUp = %v, want 0", got)
	}
	if got := gaugeValue(t, r.PeerConsecutiveFailures); got != 3 {
		t.Errorf("PeerConsecutiveFailures = %v, want 3", got)
	}

	r.SetPeerHealth(true, 0)
	if got := gaugeValue(t, r.PeerUp); got != 1 {
		t.Errorf("PeerUp = %v, want 1", got)
	}
	if got := gaugeValue(t, r.PeerConsecutiveFailures); got != 0 {
		t.Errorf("PeerConsecutiveFailures = %v, want 0", got)
	}
}

func TestSetNodeRole(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		role        string
		wantPrimary float64
		wantStandby float64
	}{
		{"primary", 1, 0},
		{"standby", 0, 1},
		{"primary", 1, 0},
	}

	for _, tt := range tests {
		r.SetNodeRole(tt.role)
		if got := gaugeValue(t, r.NodeRole.WithLabelValues("primary")); got != tt.wantPrimary {
			t.Errorf("after %s: primary gauge = %v, want %v", tt.role, got, tt.wantPrimary)
		}
		if got := gaugeValue(t, r.NodeRole.WithLabelValues("standby")); got != tt.wantStandby {
			t.Errorf("after %s: standby gauge = %v, want %v", tt.role, got, tt.wantStandby)
		}
	}
}

func TestFailoverMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordFailover("promoted", 200*time.Millisecond)
	r.FailureDecisionsTotal.Inc()
	r.ReattachScheduledTotal.WithLabelValues("timer").Inc()
	r.ReattachAttemptsTotal.WithLabelValues("unreachable").Inc()
	r.ReattachAttemptsTotal.WithLabelValues("attached").Inc()
	r.SplitBrainSuspectedTotal.Inc()

	if got := counterValue(t, r.FailoversTotal.WithLabelValues("promoted")); got != 1 {
		t.Errorf("promoted failovers = %v, want 1", got)
	}
	if got := counterValue(t, r.FailureDecisionsTotal); got != 1 {
		t.Errorf("decisions = %v, want 1", got)
	}
	if got := counterValue(t, r.ReattachAttemptsTotal.WithLabelValues("attached")); got != 1 {
		t.Errorf("attached = %v, want 1", got)
	}
	if got := counterValue(t, r.SplitBrainSuspectedTotal); got != 1 {
		t.Errorf("split brain = %v, want 1", got)
	}
}

func TestRecordBootstrap(t *testing.T) {
	r := NewRegistry()

	r.RecordBootstrap("sync", "success", 30*time.Second)
	r.RecordBootstrap("sync", "error", time.Second)
	r.RecordBootstrap("init", "success", 2*time.Second)

	if got := counterValue(t, r.BootstrapsTotal.WithLabelValues("sync", "error")); got != 1 {
		t.Errorf("sync errors = %v, want 1", got)
	}
	if got := counterValue(t, r.BootstrapsTotal.WithLabelValues("init", "success")); got != 1 {
		t.Errorf("init successes = %v, want 1", got)
	}
}

func TestSystemMetrics(t *testing.T) {
	r := NewRegistry()

	r.UpdateSystemMetrics(time.Now().Add(-time.Minute))

	if got := gaugeValue(t, r.UptimeSeconds); got < 60 {
		t.Errorf("Uptime = %v, want >= 60", got)
	}
	if got := gaugeValue(t, r.GoRoutines); got < 1 {
		t.Errorf("Goroutines = %v, want >= 1", got)
	}
	if got := gaugeValue(t, r.MemorySysBytes); got <= 0 {
		t.Errorf("MemorySysBytes = %v, want > 0", got)
	}
}

func TestGetPrometheusRegistry(t *testing.T) {
	r := NewRegistry()
	promRegistry := r.GetPrometheusRegistry()

	if promRegistry == nil {
		t.Fatal("GetPrometheusRegistry() returned nil")
	}

	metrics, err := promRegistry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	if len(metrics) == 0 {
		t.Error("No metrics registered")
	}

	// Unlabelled metrics are always exported
	expectedMetrics := []string{
		"pgha_peer_up",
		"pgha_failure_decisions_total",
		"pgha_uptime_seconds",
	}

	metricNames := make(map[string]bool)
	for _, m := range metrics {
		metricNames[m.GetName()] = true
	}

	for _, expected := range expectedMetrics {
		if !metricNames[expected] {
			t.Errorf("Expected metric %s not found", expected)
		}
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	r := NewRegistry()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				r.RecordProbe("peer", "standby", time.Millisecond)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	if got := counterValue(t, r.ProbesTotal.WithLabelValues("peer", "standby")); got != 1000 {
		t.Errorf("Counter = %v, want 1000", got)
	}
}

func TestMetricNaming(t *testing.T) {
	r := NewRegistry()
	r.RecordHTTPRequest("GET", "/health", "200", time.Millisecond)
	r.RecordProbe("peer", "primary", time.Millisecond)

	metrics, err := r.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	for _, m := range metrics {
		name := m.GetName()
		if !strings.HasPrefix(name, "pgha_") {
			t.Errorf("Metric %s does not have pgha_ prefix", name)
		}
	}
}

func BenchmarkRecordProbe(b *testing.B) {
	r := NewRegistry()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.RecordProbe("peer", "standby", time.Millisecond)
	}
}
