package probe

import (
	"time"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
)

// FailureKind separates "could not talk to the server" from "server answered
// but the health query failed". Retry accounting treats both the same.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureConnect
	FailureQuery
)

func (k FailureKind) String() string {
	switch k {
	case FailureConnect:
		return "connect"
	case FailureQuery:
		return "query"
	default:
		return "none"
	}
}

// Result is the outcome of a single probe. InRecovery is nil whenever
// Reachable is false.
type Result struct {
	Node       cluster.Node
	Reachable  bool
	InRecovery *bool
	Failure    FailureKind
	Err        error
	Latency    time.Duration
	CheckedAt  time.Time
}

// IsPrimary reports a reachable node that is not replaying WAL
func (r Result) IsPrimary() bool {
	return r.Reachable && r.InRecovery != nil && !*r.InRecovery
}

// IsStandby reports a reachable node in recovery
func (r Result) IsStandby() bool {
	return r.Reachable && r.InRecovery != nil && *r.InRecovery
}

// Outcome is a short label for logs and metrics
func (r Result) Outcome() string {
	switch {
	case r.IsPrimary():
		return "primary"
	case r.IsStandby():
		return "standby"
	case r.Failure == FailureQuery:
		return "query_error"
	default:
		return "connect_error"
	}
}

// Up builds a successful result
func Up(node cluster.Node, inRecovery bool) Result {
	return Result{Node: node, Reachable: true, InRecovery: &inRecovery, CheckedAt: time.Now()}
}

// Down builds a failed result
func Down(node cluster.Node, kind FailureKind, err error) Result {
	return Result{Node: node, Failure: kind, Err: err, CheckedAt: time.Now()}
}
