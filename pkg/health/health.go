// Package health aggregates named checks into health, readiness and liveness
// responses for the node's HTTP endpoint.
package health

import (
	"context"
	"time"
)

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: map[Scope]map[string]CheckFunc{
			ScopeHealth:    {},
			ScopeReadiness: {},
			ScopeLiveness:  {},
		},
		startTime: time.Now(),
	}
}

// Identify stamps every response with the node name and the pgha service
// answering, so a scrape of the pool network shows which process replied.
func (hc *HealthChecker) Identify(node, service string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.node = node
	hc.service = service
}

// Add registers check under name for scope, replacing any earlier one
func (hc *HealthChecker) Add(scope Scope, name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[scope][name] = check
}

// RegisterCheck registers a check reported on /health
func (hc *HealthChecker) RegisterCheck(name string, check CheckFunc) {
	hc.Add(ScopeHealth, name, check)
}

// RegisterReadinessCheck registers a readiness check
func (hc *HealthChecker) RegisterReadinessCheck(name string, check CheckFunc) {
	hc.Add(ScopeReadiness, name, check)
}

// RegisterLivenessCheck registers a liveness check
func (hc *HealthChecker) RegisterLivenessCheck(name string, check CheckFunc) {
	hc.Add(ScopeLiveness, name, check)
}

// Check performs all health checks
func (hc *HealthChecker) Check(ctx context.Context) Response {
	return hc.Run(ctx, ScopeHealth)
}

// CheckReadiness performs readiness checks
func (hc *HealthChecker) CheckReadiness(ctx context.Context) Response {
	return hc.Run(ctx, ScopeReadiness)
}

// CheckLiveness performs liveness checks
func (hc *HealthChecker) CheckLiveness(ctx context.Context) Response {
	return hc.Run(ctx, ScopeLiveness)
}

// Run executes the checks of scope. The worst status wins.
func (hc *HealthChecker) Run(ctx context.Context, scope Scope) Response {
	checks, node, service := hc.snapshot(scope)

	response := Response{
		Status:    StatusHealthy,
		Node:      node,
		Service:   service,
		Timestamp: time.Now(),
		Checks:    make(map[string]Check, len(checks)),
		Uptime:    time.Since(hc.startTime).Seconds(),
	}

	for name, checkFunc := range checks {
		start := time.Now()
		check := checkFunc(ctx)
		if check.Name == "" {
			check.Name = name
		}
		check.LastChecked = start
		check.DurationMs = float64(time.Since(start).Microseconds()) / 1000

		response.Checks[name] = check
		if check.Status.worse(response.Status) {
			response.Status = check.Status
		}
	}

	return response
}

// snapshot copies the checks of scope so slow checks run without the lock held
func (hc *HealthChecker) snapshot(scope Scope) (map[string]CheckFunc, string, string) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	out := make(map[string]CheckFunc, len(hc.checks[scope]))
	for k, v := range hc.checks[scope] {
		out[k] = v
	}
	return out, hc.node, hc.service
}
