package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/logging"
	"github.com/dd0wney/cluso-pgha/pkg/metrics"
	"github.com/dd0wney/cluso-pgha/pkg/probe"
)

// DetectorOptions configures a Detector
type DetectorOptions struct {
	Interval    time.Duration
	RetryBudget int
	// OnDecision runs in its own goroutine each time the budget is exhausted.
	OnDecision func(cluster.FailoverDecision)
	Logger     logging.Logger
	Metrics    *metrics.Registry
}

// Detector probes the node believed primary once per interval. Consecutive
// failures count against the retry budget and any success resets the count.
// Exhausting the budget produces one FailoverDecision; the detector then stays
// quiet until the node is seen healthy again, or until Promoted moves it to
// the survivor.
type Detector struct {
	prober probe.Prober

	interval   time.Duration
	budget     int
	onDecision func(cluster.FailoverDecision)
	base       logging.Logger
	metrics    *metrics.Registry

	mu       sync.Mutex
	watched  cluster.Node
	survivor cluster.Node
	logger   logging.Logger
	failures int
	fired    bool
	probes   int

	callbacks sync.WaitGroup
}

// NewDetector watches `watched`; decisions name `survivor` as the node to promote.
func NewDetector(p probe.Prober, watched, survivor cluster.Node, opts DetectorOptions) *Detector {
	d := &Detector{
		prober:     p,
		watched:    watched,
		survivor:   survivor,
		interval:   opts.Interval,
		budget:     opts.RetryBudget,
		onDecision: opts.OnDecision,
		base:       opts.Logger,
		metrics:    opts.Metrics,
	}
	if d.interval <= 0 {
		d.interval = time.Second
	}
	if d.budget <= 0 {
		d.budget = 10
	}
	if d.base == nil {
		d.base = logging.NewNopLogger()
	}
	if d.metrics == nil {
		d.metrics = metrics.NewRegistry()
	}
	d.base = d.base.With(logging.Component("detector"))
	d.logger = d.base.With(logging.Node(watched.Name, watched.Addr()))
	return d
}

// Run probes until ctx is cancelled. The first probe happens one interval
// after the call. Run waits for in-flight OnDecision callbacks before returning.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.base.Info("detector started",
		logging.Node(d.Watched().Name, d.Watched().Addr()),
		logging.Duration("interval", d.interval),
		logging.Int("retry_budget", d.budget),
	)

	for {
		select {
		case <-ctx.Done():
			d.callbacks.Wait()
			d.base.Info("detector stopped")
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, d.interval)
			res := d.prober.Probe(probeCtx, d.Watched())
			cancel()
			if decision, ok := d.Observe(res); ok && d.onDecision != nil {
				d.callbacks.Add(1)
				go func() {
					defer d.callbacks.Done()
					d.onDecision(decision)
				}()
			}
		}
	}
}

// Observe feeds one probe result into the state machine and reports whether
// it exhausted the retry budget.
func (d *Detector) Observe(res probe.Result) (cluster.FailoverDecision, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.probes++

	// A result for a node no longer watched arrives after Promoted.
	if res.Node.Name != "" && res.Node.Name != d.watched.Name {
		return cluster.FailoverDecision{}, false
	}

	if res.Reachable {
		if d.failures > 0 || d.fired {
			d.logger.Info("watched node healthy again", logging.Int("failed_probes", d.failures))
		}
		d.failures = 0
		d.fired = false
		d.metrics.SetPeerHealth(true, 0)
		return cluster.FailoverDecision{}, false
	}

	d.failures++
	d.metrics.SetPeerHealth(false, d.failures)
	if d.fired {
		return cluster.FailoverDecision{}, false
	}
	logFailure(d.logger, res, d.failures, d.budget)

	if d.failures < d.budget {
		return cluster.FailoverDecision{}, false
	}

	d.fired = true
	d.metrics.FailureDecisionsTotal.Inc()
	decision := cluster.NewFailoverDecision(d.watched, d.survivor, d.failures, time.Now())
	d.logger.Warn("retry budget exhausted, declaring node down",
		logging.String("decision_id", decision.ID),
		logging.Attempt(d.failures, d.budget),
		logging.String("promote", d.survivor.Name),
	)
	return decision, true
}

// Promoted tells the detector that node now serves as primary. When node is
// the survivor the two swap roles: the promoted node is watched from the next
// tick and the failed node becomes the survivor of any later decision. The
// failure count starts over. Other nodes are ignored.
func (d *Detector) Promoted(node cluster.Node) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if node.Name != d.survivor.Name {
		return false
	}
	d.watched, d.survivor = d.survivor, d.watched
	d.failures = 0
	d.fired = false
	d.logger = d.base.With(logging.Node(d.watched.Name, d.watched.Addr()))
	d.logger.Info("now watching promoted node", logging.String("survivor", d.survivor.Name))
	return true
}

// Watched returns the node currently probed
func (d *Detector) Watched() cluster.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.watched
}

// Failures returns the current consecutive failure count
func (d *Detector) Failures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failures
}

// Probes returns how many results the detector has observed
func (d *Detector) Probes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.probes
}
