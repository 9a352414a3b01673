// Package failover turns "the primary is down" into a promotion of its twin
// followed by a delayed reattachment of the failed node.
package failover

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/journal"
	"github.com/dd0wney/cluso-pgha/pkg/logging"
	"github.com/dd0wney/cluso-pgha/pkg/metrics"
	"github.com/dd0wney/cluso-pgha/pkg/probe"
	"github.com/dd0wney/cluso-pgha/pkg/repair"
)

// Promoter asks a node to promote itself. *trigger.Client satisfies it.
type Promoter interface {
	Promote(ctx context.Context, node cluster.Node) error
}

// Options configures a Controller
type Options struct {
	// Prober is optional; when set the survivor is probed before promotion.
	Prober         probe.Prober
	Promoter       Promoter
	Scheduler      repair.Scheduler
	ReattachDelay  time.Duration
	PromoteTimeout time.Duration
	Journal        journal.Journal
	Logger         logging.Logger
	Metrics        *metrics.Registry
	Now            func() time.Time
}

// Report is the outcome of one failover action
type Report struct {
	Decision  cluster.FailoverDecision
	PeerProbe *probe.Result

	Promoted   bool
	PromoteErr error
	// AlreadyPrimary is set when the survivor answered as primary before the
	// promotion call, which is then skipped.
	AlreadyPrimary bool

	Reattach    cluster.ReattachRequest
	ScheduleErr error

	Duration time.Duration
}

// OK reports whether both steps succeeded
func (r Report) OK() bool {
	return r.PromoteErr == nil && r.ScheduleErr == nil
}

// SurvivorPrimary reports whether the survivor now serves as primary
func (r Report) SurvivorPrimary() bool {
	return r.Promoted || r.AlreadyPrimary
}

// Result is a metrics label: ok, promote_failed, schedule_failed or failed
func (r Report) Result() string {
	switch {
	case r.OK():
		return "ok"
	case r.PromoteErr != nil && r.ScheduleErr != nil:
		return "failed"
	case r.PromoteErr != nil:
		return "promote_failed"
	default:
		return "schedule_failed"
	}
}

// Controller runs failover actions
type Controller struct {
	prober         probe.Prober
	promoter       Promoter
	scheduler      repair.Scheduler
	delay          time.Duration
	promoteTimeout time.Duration
	journal        journal.Journal
	logger         logging.Logger
	metrics        *metrics.Registry
	now            func() time.Time
}

// NewController creates a controller
func NewController(opts Options) *Controller {
	c := &Controller{
		prober:         opts.Prober,
		promoter:       opts.Promoter,
		scheduler:      opts.Scheduler,
		delay:          opts.ReattachDelay,
		promoteTimeout: opts.PromoteTimeout,
		journal:        opts.Journal,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		now:            opts.Now,
	}
	if c.delay <= 0 {
		c.delay = 15 * time.Second
	}
	if c.promoteTimeout <= 0 {
		c.promoteTimeout = 5 * time.Second
	}
	if c.journal == nil {
		c.journal = journal.Nop{}
	}
	if c.logger == nil {
		c.logger = logging.NewNopLogger()
	}
	if c.metrics == nil {
		c.metrics = metrics.NewRegistry()
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.logger = c.logger.With(logging.Component("failover"))
	return c
}

// OnPrimaryDeclaredDown promotes peer and schedules failed for reattachment.
// Both steps are always attempted; errors land in the Report.
func (c *Controller) OnPrimaryDeclaredDown(ctx context.Context, failed, peer cluster.Node) Report {
	return c.Handle(ctx, cluster.NewFailoverDecision(failed, peer, 0, c.now()))
}

// Handle runs the failover action for a decision produced by a Detector
func (c *Controller) Handle(ctx context.Context, d cluster.FailoverDecision) (rep Report) {
	start := time.Now()
	rep.Decision = d
	logger := c.logger.With(
		logging.String("decision_id", d.ID),
		logging.String("failed", d.FailedNode.Name),
		logging.String("promote", d.PromotedNode.Name),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("failover action panicked", logging.Any("panic", r))
			if rep.PromoteErr == nil && !rep.Promoted {
				rep.PromoteErr = fmt.Errorf("%w: panic: %v", cluster.ErrPromotionFailed, r)
			}
			if rep.ScheduleErr == nil && rep.Reattach.ID == "" {
				rep.ScheduleErr = fmt.Errorf("%w: panic: %v", cluster.ErrReattachFailed, r)
			}
		}
		rep.Duration = time.Since(start)
		c.metrics.RecordFailover(rep.Result(), rep.Duration)
		c.record(ctx, logger, rep)
	}()

	logger.Warn("primary declared down, starting failover", logging.Int("retries_exhausted", d.RetriesExhausted))

	if c.prober != nil {
		res := c.prober.Probe(ctx, d.PromotedNode)
		rep.PeerProbe = &res
		logger.Info("survivor state before promotion",
			logging.Outcome(res.Outcome()),
			logging.Latency(res.Latency),
		)
	}

	// pgpool also runs failover_command when a standby fails. The survivor is
	// then the primary already and gets no trigger file.
	if rep.PeerProbe != nil && rep.PeerProbe.IsPrimary() {
		rep.AlreadyPrimary = true
		logger.Info("survivor already serves as primary, skipping promotion")
	} else {
		rep.PromoteErr = c.promote(ctx, d.PromotedNode)
		if rep.PromoteErr != nil {
			logger.Error("promotion failed", logging.Error(rep.PromoteErr))
		} else {
			rep.Promoted = true
		}
	}

	req := cluster.NewReattachRequest(d.FailedNode, c.delay, c.now())
	if c.scheduler == nil {
		rep.ScheduleErr = fmt.Errorf("%w: no scheduler configured", cluster.ErrReattachFailed)
	} else if err := c.scheduler.Schedule(req); err != nil {
		rep.ScheduleErr = err
	} else {
		rep.Reattach = req
	}
	if rep.ScheduleErr != nil {
		logger.Error("failed to schedule reattach", logging.Error(rep.ScheduleErr))
	}

	return rep
}

func (c *Controller) promote(ctx context.Context, node cluster.Node) error {
	if c.promoter == nil {
		return fmt.Errorf("%w: no promoter configured", cluster.ErrPromotionFailed)
	}
	pctx, cancel := context.WithTimeout(ctx, c.promoteTimeout)
	defer cancel()

	err := c.promoter.Promote(pctx, node)
	if err != nil && !errors.Is(err, cluster.ErrPromotionFailed) {
		err = fmt.Errorf("%w: %v", cluster.ErrPromotionFailed, err)
	}
	return err
}

func (c *Controller) record(ctx context.Context, logger logging.Logger, rep Report) {
	d := rep.Decision
	ev := journal.NewEvent(journal.KindFailoverDecision, d.FailedNode.Name, rep.Result(), "").
		With("decision_id", d.ID).
		With("promoted_node", d.PromotedNode.Name).
		With("retries_exhausted", strconv.Itoa(d.RetriesExhausted))
	if rep.PeerProbe != nil {
		ev = ev.With("survivor_state", rep.PeerProbe.Outcome())
	}
	if rep.Reattach.ID != "" {
		ev = ev.With("reattach_id", rep.Reattach.ID).With("reattach_due", rep.Reattach.Due().UTC().Format(time.RFC3339))
	}
	if err := c.journal.Append(ctx, ev); err != nil {
		logger.Warn("failed to journal failover decision", logging.Error(err))
	}

	promotion := "promoted"
	msg := ""
	switch {
	case rep.PromoteErr != nil:
		promotion = "failed"
		msg = rep.PromoteErr.Error()
	case rep.AlreadyPrimary:
		promotion = "already_primary"
	}
	pev := journal.NewEvent(journal.KindPromotion, d.PromotedNode.Name, promotion, msg).With("decision_id", d.ID)
	if err := c.journal.Append(ctx, pev); err != nil {
		logger.Warn("failed to journal promotion", logging.Error(err))
	}

	if rep.OK() {
		logger.Info("failover complete", logging.Latency(rep.Duration))
	}
}
