package health

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/probe"
)

// Common health check functions

// SimpleCheck creates a check that always reports healthy
func SimpleCheck(name string) CheckFunc {
	return func(context.Context) Check {
		return Check{
			Name:   name,
			Status: StatusHealthy,
		}
	}
}

// DatabaseCheck probes the local database. A primary or standby answer is
// healthy; anything else is unhealthy.
func DatabaseCheck(p probe.Prober, node cluster.Node, timeout time.Duration) CheckFunc {
	return func(ctx context.Context) Check {
		check := Check{
			Name:    "database",
			Details: make(map[string]any),
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		res := p.Probe(ctx, node)
		check.Details["node"] = node.Name
		check.Details["outcome"] = res.Outcome()

		if !res.Reachable {
			check.Status = StatusUnhealthy
			if res.Err != nil {
				check.Message = res.Err.Error()
			}
			return check
		}

		check.Status = StatusHealthy
		check.Details["in_recovery"] = *res.InRecovery
		if res.IsPrimary() {
			check.Message = "Serving as primary"
		} else {
			check.Message = "Serving as standby"
		}
		return check
	}
}

// DataDirCheck reports whether the data directory carries its initialization
// marker. A missing marker is degraded: bootstrap is still pending.
func DataDirCheck(dataDir, marker string) CheckFunc {
	return func(context.Context) Check {
		check := Check{
			Name:    "data_dir",
			Details: map[string]any{"path": dataDir},
		}

		_, err := os.Stat(filepath.Join(dataDir, marker))
		switch {
		case err == nil:
			check.Status = StatusHealthy
			check.Message = "Initialized"
		case errors.Is(err, fs.ErrNotExist):
			check.Status = StatusDegraded
			check.Message = "Bootstrap pending"
		default:
			check.Status = StatusUnhealthy
			check.Message = err.Error()
		}
		return check
	}
}

// PromotionCheck exposes whether the promotion sentinel has been written.
// It is informational and always healthy.
func PromotionCheck(sentinelPath string) CheckFunc {
	return func(context.Context) Check {
		_, err := os.Stat(sentinelPath)
		promoted := err == nil

		msg := "Not promoted"
		if promoted {
			msg = "Promotion requested"
		}
		return Check{
			Name:    "promotion",
			Status:  StatusHealthy,
			Message: msg,
			Details: map[string]any{"promoted": promoted, "sentinel": sentinelPath},
		}
	}
}

// PeerCheck reports the detector's view of the watched node. Failures below
// the budget are degraded, reaching it is unhealthy.
func PeerCheck(failures func() int, budget int) CheckFunc {
	return func(context.Context) Check {
		check := Check{
			Name:    "peer",
			Details: make(map[string]any),
		}

		n := failures()
		check.Details["consecutive_failures"] = n
		check.Details["retry_budget"] = budget

		switch {
		case n == 0:
			check.Status = StatusHealthy
			check.Message = "Peer healthy"
		case n < budget:
			check.Status = StatusDegraded
			check.Message = "Peer failing probes"
		default:
			check.Status = StatusUnhealthy
			check.Message = "Peer declared down"
		}
		return check
	}
}

// MemoryCheck creates a health check for memory usage
func MemoryCheck() CheckFunc {
	return func(context.Context) Check {
		check := Check{
			Name:    "memory",
			Details: make(map[string]any),
		}

		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		check.Details["alloc_bytes"] = m.Alloc
		check.Details["sys_bytes"] = m.Sys
		check.Details["goroutines"] = runtime.NumGoroutine()

		// Degraded if allocated memory > 90% of what was obtained from the OS
		usagePercent := float64(m.Alloc) / float64(m.Sys) * 100
		if usagePercent > 90 {
			check.Status = StatusDegraded
			check.Message = "High memory usage"
		} else {
			check.Status = StatusHealthy
			check.Message = "Memory usage normal"
		}
		return check
	}
}

// ErrorCheck adapts a plain error-returning function
func ErrorCheck(name string, fn func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) Check {
		if err := fn(ctx); err != nil {
			return Check{Name: name, Status: StatusUnhealthy, Message: strings.TrimSpace(err.Error())}
		}
		return Check{Name: name, Status: StatusHealthy}
	}
}
