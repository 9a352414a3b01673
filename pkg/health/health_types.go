package health

import (
	"context"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// worse reports whether s outranks other. Unhealthy beats degraded beats healthy.
func (s Status) worse(other Status) bool {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	return rank[s] > rank[other]
}

// Scope selects which endpoint a check answers for
type Scope int

const (
	// ScopeHealth checks are reported on /health; degraded still answers 200
	ScopeHealth Scope = iota
	// ScopeReadiness gates /ready, e.g. bootstrap still pending
	ScopeReadiness
	// ScopeLiveness gates /live
	ScopeLiveness
)

// Check is the result of one named check
type Check struct {
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	DurationMs  float64        `json:"duration_ms"`
}

// CheckFunc is a function that performs a health check. It must return
// before ctx ends.
type CheckFunc func(ctx context.Context) Check

// HealthChecker runs the checks of one pgha process (trigger or watch)
type HealthChecker struct {
	mu        sync.RWMutex
	checks    map[Scope]map[string]CheckFunc
	node      string
	service   string
	startTime time.Time
}

// Response is the body of /health, /ready and /live
type Response struct {
	Status    Status           `json:"status"`
	Node      string           `json:"node,omitempty"`
	Service   string           `json:"service,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
	Uptime    float64          `json:"uptime_seconds"`
}
