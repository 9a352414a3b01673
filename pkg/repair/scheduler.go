package repair

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/command"
	"github.com/dd0wney/cluso-pgha/pkg/logging"
	"github.com/dd0wney/cluso-pgha/pkg/metrics"
)

// Scheduler arranges for a ReattachRequest to run once, no earlier than its
// due time
type Scheduler interface {
	Schedule(req cluster.ReattachRequest) error
}

// Reattacher is satisfied by *Coordinator
type Reattacher interface {
	Reattach(ctx context.Context, node cluster.Node) Result
}

// TimerScheduler runs reattachments in process with time.AfterFunc
type TimerScheduler struct {
	ctx      context.Context
	r        Reattacher
	onResult func(Result)
	logger   logging.Logger
	metrics  *metrics.Registry

	mu      sync.Mutex
	pending map[string]*time.Timer
	running sync.WaitGroup
}

// NewTimerScheduler creates a scheduler whose attempts run with ctx.
// onResult may be nil.
func NewTimerScheduler(ctx context.Context, r Reattacher, onResult func(Result), logger logging.Logger, reg *metrics.Registry) *TimerScheduler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &TimerScheduler{
		ctx:      ctx,
		r:        r,
		onResult: onResult,
		logger:   logger.With(logging.Component("repair-scheduler")),
		metrics:  reg,
		pending:  make(map[string]*time.Timer),
	}
}

// Schedule arms a one-shot timer for req. Scheduling the same request id
// twice is an error.
func (s *TimerScheduler) Schedule(req cluster.ReattachRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[req.ID]; exists {
		return fmt.Errorf("reattach request %s already scheduled", req.ID)
	}

	delay := time.Until(req.Due())
	if delay < 0 {
		delay = 0
	}

	s.running.Add(1)
	s.pending[req.ID] = time.AfterFunc(delay, func() { s.fire(req) })

	s.metrics.ReattachScheduledTotal.WithLabelValues("timer").Inc()
	s.logger.Info("reattach scheduled",
		logging.Node(req.Node.Name, req.Node.Addr()),
		logging.String("request_id", req.ID),
		logging.Duration("delay", delay),
	)
	return nil
}

func (s *TimerScheduler) fire(req cluster.ReattachRequest) {
	defer s.running.Done()

	s.mu.Lock()
	_, ok := s.pending[req.ID]
	delete(s.pending, req.ID)
	s.mu.Unlock()
	if !ok {
		return
	}

	res := s.r.Reattach(s.ctx, req.Node)
	if s.onResult != nil {
		s.onResult(res)
	}
}

// Pending returns the number of armed, not yet fired requests
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending request and waits for attempts already running.
// It returns how many requests were cancelled.
func (s *TimerScheduler) Stop() int {
	s.mu.Lock()
	cancelled := 0
	for id, t := range s.pending {
		if t.Stop() {
			cancelled++
			s.running.Done()
		}
		delete(s.pending, id)
	}
	s.mu.Unlock()

	s.running.Wait()
	return cancelled
}

// ProcessScheduler hands each request to a detached `pgha repair` child so
// the delay outlives a short-lived caller such as pgpool's failover_command
type ProcessScheduler struct {
	runner     command.Runner
	executable string
	extraArgs  []string
	logger     logging.Logger
	metrics    *metrics.Registry
}

// NewProcessScheduler creates a scheduler that re-invokes executable.
// An empty executable means the running binary. extraArgs are appended to
// every invocation (for example --config).
func NewProcessScheduler(runner command.Runner, executable string, extraArgs []string, logger logging.Logger, reg *metrics.Registry) (*ProcessScheduler, error) {
	if executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate own executable: %w", err)
		}
		executable = exe
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &ProcessScheduler{
		runner:     runner,
		executable: executable,
		extraArgs:  extraArgs,
		logger:     logger.With(logging.Component("repair-scheduler")),
		metrics:    reg,
	}, nil
}

// Command renders the child invocation for req
func (s *ProcessScheduler) Command(req cluster.ReattachRequest) command.Command {
	delay := time.Until(req.Due())
	if delay < 0 {
		delay = 0
	}
	args := []string{
		"repair",
		"--index", strconv.Itoa(req.Node.PoolIndex),
		"--delay", delay.Round(time.Millisecond).String(),
	}
	return command.Command{Path: s.executable, Args: append(args, s.extraArgs...)}
}

// Schedule starts the child and returns without waiting
func (s *ProcessScheduler) Schedule(req cluster.ReattachRequest) error {
	pid, err := s.runner.Start(s.Command(req))
	if err != nil {
		return fmt.Errorf("%w: %v", cluster.ErrReattachFailed, err)
	}
	s.metrics.ReattachScheduledTotal.WithLabelValues("process").Inc()
	s.logger.Info("reattach handed to detached process",
		logging.Node(req.Node.Name, req.Node.Addr()),
		logging.String("request_id", req.ID),
		logging.Int("pid", pid),
	)
	return nil
}
