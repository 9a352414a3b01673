// Package monitor watches the peer node: a bounded wait used at node start,
// and a retry-budget detector that turns repeated probe failures into a
// failover decision.
package monitor

import (
	"context"
	"time"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/logging"
	"github.com/dd0wney/cluso-pgha/pkg/metrics"
	"github.com/dd0wney/cluso-pgha/pkg/probe"
)

// Outcome is the result of a bounded wait for the peer
type Outcome int

const (
	TimedOut Outcome = iota
	PeerUpPrimary
	PeerUpStandby
)

func (o Outcome) String() string {
	switch o {
	case PeerUpPrimary:
		return "up_primary"
	case PeerUpStandby:
		return "up_standby"
	default:
		return "timed_out"
	}
}

// WaitOptions tunes WaitForPeer
type WaitOptions struct {
	// Interval between probes. Defaults to one second.
	Interval time.Duration
	Logger   logging.Logger
	Metrics  *metrics.Registry
}

// WaitForPeer probes node until it answers or maxDuration elapses. The first
// probe runs immediately. Every probe shares the overall deadline, so the call
// never outlives maxDuration by more than the time a probe needs to notice
// its context ended. Cancelling ctx yields TimedOut.
func WaitForPeer(ctx context.Context, p probe.Prober, node cluster.Node, maxDuration time.Duration, opts WaitOptions) Outcome {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.With(logging.Component("monitor"), logging.Node(node.Name, node.Addr()))

	start := time.Now()
	outcome := waitForPeer(ctx, p, node, maxDuration, opts.Interval, logger)
	elapsed := time.Since(start)

	if opts.Metrics != nil {
		opts.Metrics.RecordPeerWait(outcome.String(), elapsed)
	}
	logger.Info("peer wait finished", logging.Outcome(outcome.String()), logging.Duration("elapsed", elapsed))
	return outcome
}

func waitForPeer(ctx context.Context, p probe.Prober, node cluster.Node, maxDuration, interval time.Duration, logger logging.Logger) Outcome {
	ctx, cancel := context.WithTimeout(ctx, maxDuration)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		res := p.Probe(ctx, node)
		switch {
		case res.IsPrimary():
			return PeerUpPrimary
		case res.IsStandby():
			return PeerUpStandby
		}
		logFailure(logger, res, attempt, 0)

		select {
		case <-ctx.Done():
			return TimedOut
		case <-ticker.C:
		}
	}
}

// logFailure logs unreachable probes at INFO and answered-but-broken ones at
// WARN. A zero budget means the caller has none.
func logFailure(logger logging.Logger, res probe.Result, attempt, budget int) {
	fields := []logging.Field{
		logging.String("failure", res.Failure.String()),
		logging.Error(res.Err),
	}
	if budget > 0 {
		fields = append(fields, logging.Attempt(attempt, budget))
	} else {
		fields = append(fields, logging.Int("attempt", attempt))
	}

	if res.Failure == probe.FailureQuery {
		logger.Warn("peer answered but health query failed", fields...)
		return
	}
	logger.Info("peer unreachable", fields...)
}
