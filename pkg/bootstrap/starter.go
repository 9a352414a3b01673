package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/journal"
	"github.com/dd0wney/cluso-pgha/pkg/logging"
	"github.com/dd0wney/cluso-pgha/pkg/metrics"
	"github.com/dd0wney/cluso-pgha/pkg/monitor"
	"github.com/dd0wney/cluso-pgha/pkg/probe"
)

// Action is what the startup sequence does to the data directory
type Action string

const (
	ActionStart      Action = "start"
	ActionInitialize Action = "initialize"
	ActionSync       Action = "sync"
	// ActionRejoin moves a diverged former primary aside and re-seeds it.
	ActionRejoin Action = "rejoin"
)

// PeerSyncer is satisfied by *Syncer
type PeerSyncer interface {
	SyncFromPeer(ctx context.Context, source cluster.Node, target string) error
}

// DataInitializer is satisfied by *Initializer
type DataInitializer interface {
	Initialize(ctx context.Context, dataDir string) error
}

// StarterOptions configures a Starter
type StarterOptions struct {
	Topology     cluster.Topology
	DataDir      string
	MarkerFile   string
	Prober       probe.Prober
	MaxWait      time.Duration
	WaitInterval time.Duration
	Syncer       PeerSyncer
	Initializer  DataInitializer
	// Engine is optional; without one Run stops after preparing the data.
	Engine         Engine
	RejoinDiverged bool
	Journal        journal.Journal
	Logger         logging.Logger
	Metrics        *metrics.Registry
	Now            func() time.Time
}

// Plan is the startup decision
type Plan struct {
	HAEnabled bool
	// Peer is only meaningful when HAEnabled.
	Peer   monitor.Outcome
	Action Action
	// Role is the effective role the data directory will start in.
	Role         cluster.Role
	DivergedPath string
}

// Starter decides how a node comes up and prepares its data directory
type Starter struct {
	opts    StarterOptions
	logger  logging.Logger
	metrics *metrics.Registry
	journal journal.Journal
	now     func() time.Time
}

// NewStarter creates a Starter
func NewStarter(opts StarterOptions) *Starter {
	if opts.MarkerFile == "" {
		opts.MarkerFile = "PG_VERSION"
	}
	s := &Starter{opts: opts, logger: opts.Logger, metrics: opts.Metrics, journal: opts.Journal, now: opts.Now}
	if s.logger == nil {
		s.logger = logging.NewNopLogger()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewRegistry()
	}
	if s.journal == nil {
		s.journal = journal.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	self := opts.Topology.Self
	s.logger = s.logger.With(logging.Component("startup"), logging.Node(self.Name, self.Addr()), logging.Role(self.DeclaredRole.String()))
	return s
}

// Run decides, prepares the data directory and hands off to the Engine.
// With an ExecEngine a successful Run never returns.
func (s *Starter) Run(ctx context.Context) (Plan, error) {
	plan, err := s.Decide(ctx)
	if err != nil {
		s.logger.Error("startup decision failed", logging.Error(err))
		s.recordEvent(ctx, plan, err)
		return plan, err
	}

	if err := s.Prepare(ctx, &plan); err != nil {
		s.logger.Error("failed to prepare data directory", logging.String("action", string(plan.Action)), logging.Error(err))
		s.recordEvent(ctx, plan, err)
		return plan, err
	}
	s.recordEvent(ctx, plan, nil)

	s.metrics.SetNodeRole(strings.ToLower(plan.Role.String()))
	s.logger.Info("data directory ready", logging.String("action", string(plan.Action)), logging.String("effective_role", plan.Role.String()))

	if s.opts.Engine == nil {
		return plan, nil
	}
	if err := s.opts.Engine.Start(ctx, s.opts.DataDir); err != nil {
		return plan, fmt.Errorf("failed to start database: %w", err)
	}
	return plan, nil
}

// Decide waits for the peer when HA is enabled and picks an Action
func (s *Starter) Decide(ctx context.Context) (Plan, error) {
	topo := s.opts.Topology
	self := topo.Self
	marker := exists(filepath.Join(s.opts.DataDir, s.opts.MarkerFile))

	plan := Plan{HAEnabled: topo.HAEnabled, Peer: monitor.TimedOut}

	if !topo.HAEnabled {
		if marker {
			plan.Action = ActionStart
		} else {
			plan.Action = ActionInitialize
		}
		plan.Role = s.roleFor(plan.Action)
		return plan, nil
	}

	s.logger.Info("waiting for peer", logging.Node(topo.Peer.Name, topo.Peer.Addr()), logging.Duration("max_wait", s.opts.MaxWait))
	plan.Peer = monitor.WaitForPeer(ctx, s.opts.Prober, topo.Peer, s.opts.MaxWait, monitor.WaitOptions{
		Interval: s.opts.WaitInterval,
		Logger:   s.logger,
		Metrics:  s.metrics,
	})
	s.logger.Info("peer wait finished", logging.Outcome(plan.Peer.String()))

	switch plan.Peer {
	case monitor.PeerUpPrimary:
		switch {
		case !marker:
			plan.Action = ActionSync
		case HasRecoveryConfig(s.opts.DataDir):
			plan.Action = ActionStart
		case s.opts.RejoinDiverged:
			plan.Action = ActionRejoin
		default:
			return plan, fmt.Errorf("%w: %s", cluster.ErrDivergedPrimary, s.opts.DataDir)
		}

	default:
		// Peer is a standby or did not answer: nothing to copy from.
		switch {
		case marker:
			plan.Action = ActionStart
		case self.DeclaredRole == cluster.RolePrimary:
			plan.Action = ActionInitialize
		default:
			return plan, fmt.Errorf("%w: peer %s is %s", cluster.ErrNoPeerForBootstrap, topo.Peer.Name, plan.Peer)
		}
	}

	plan.Role = s.roleFor(plan.Action)
	return plan, nil
}

// Prepare carries out plan.Action
func (s *Starter) Prepare(ctx context.Context, plan *Plan) error {
	switch plan.Action {
	case ActionStart:
		return nil

	case ActionInitialize:
		return s.opts.Initializer.Initialize(ctx, s.opts.DataDir)

	case ActionSync:
		return s.opts.Syncer.SyncFromPeer(ctx, s.opts.Topology.Peer, s.opts.DataDir)

	case ActionRejoin:
		aside := fmt.Sprintf("%s.diverged-%d", s.opts.DataDir, s.now().Unix())
		if err := os.Rename(s.opts.DataDir, aside); err != nil {
			return fmt.Errorf("failed to move diverged data aside: %w", err)
		}
		plan.DivergedPath = aside
		s.logger.Warn("former primary diverged from acting primary, data moved aside", logging.Path(aside))
		return s.opts.Syncer.SyncFromPeer(ctx, s.opts.Topology.Peer, s.opts.DataDir)

	default:
		return fmt.Errorf("unknown startup action %q", plan.Action)
	}
}

// roleFor follows the data layer: a directory with recovery config starts
// as a standby whatever the declared role says
func (s *Starter) roleFor(a Action) cluster.Role {
	switch a {
	case ActionSync, ActionRejoin:
		return cluster.RoleStandby
	case ActionInitialize:
		return cluster.RolePrimary
	}
	if HasRecoveryConfig(s.opts.DataDir) {
		return cluster.RoleStandby
	}
	return cluster.RolePrimary
}

func (s *Starter) recordEvent(ctx context.Context, plan Plan, err error) {
	outcome, msg := "ok", ""
	if err != nil {
		outcome, msg = "failed", err.Error()
	}
	ev := journal.NewEvent(journal.KindBootstrap, s.opts.Topology.Self.Name, outcome, msg).
		With("action", string(plan.Action))
	if plan.HAEnabled {
		ev = ev.With("peer", plan.Peer.String())
	}
	if plan.DivergedPath != "" {
		ev = ev.With("diverged_path", plan.DivergedPath)
	}
	if jerr := s.journal.Append(ctx, ev); jerr != nil {
		s.logger.Warn("failed to journal startup", logging.Error(jerr))
	}
}
