// Package repair returns a failed node to the pool once it is serving again.
// Reattachment is one-shot: a failed attempt is reported, never retried.
package repair

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/command"
	"github.com/dd0wney/cluso-pgha/pkg/journal"
	"github.com/dd0wney/cluso-pgha/pkg/logging"
	"github.com/dd0wney/cluso-pgha/pkg/metrics"
	"github.com/dd0wney/cluso-pgha/pkg/probe"
)

// PCP holds the pgpool management endpoint and credentials
type PCP struct {
	Host          string
	Port          int
	User          string
	Password      string
	AttachCommand string
}

// Options configures a Coordinator
type Options struct {
	PCP            PCP
	CommandTimeout time.Duration
	Runner         command.Runner
	Prober         probe.Prober
	Journal        journal.Journal
	Logger         logging.Logger
	Metrics        *metrics.Registry
	// TempDir holds the short-lived PCP password file. Defaults to os.TempDir().
	TempDir string
}

// Result describes one reattach attempt
type Result struct {
	Node     cluster.Node
	Attached bool
	Probe    probe.Result
	// SplitBrainSuspected is set when the node answered as a primary.
	SplitBrainSuspected bool
	Output              string
	Err                 error
	Duration            time.Duration
}

// Coordinator probes a node and, if it is serving, attaches it to the pool
type Coordinator struct {
	pcp     PCP
	timeout time.Duration
	runner  command.Runner
	prober  probe.Prober
	journal journal.Journal
	logger  logging.Logger
	metrics *metrics.Registry
	tempDir string
}

// NewCoordinator creates a coordinator
func NewCoordinator(opts Options) *Coordinator {
	c := &Coordinator{
		pcp:     opts.PCP,
		timeout: opts.CommandTimeout,
		runner:  opts.Runner,
		prober:  opts.Prober,
		journal: opts.Journal,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		tempDir: opts.TempDir,
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
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
	c.logger = c.logger.With(logging.Component("repair"))
	return c
}

// Reattach makes exactly one attempt to attach node. An unreachable node
// fails without touching the pool; this also covers a node whose bootstrap
// has not finished, since it is not serving yet.
func (c *Coordinator) Reattach(ctx context.Context, node cluster.Node) Result {
	start := time.Now()
	logger := c.logger.With(logging.Node(node.Name, node.Addr()), logging.Int("index", node.PoolIndex))

	res := c.reattach(ctx, node, logger)
	res.Duration = time.Since(start)

	outcome := "attached"
	switch {
	case res.Attached:
		logger.Info("node reattached to pool", logging.Latency(res.Duration))
	case errors.Is(res.Err, cluster.ErrNodeDown):
		outcome = "unreachable"
		logger.Warn("reattach skipped, node is not serving", logging.Error(res.Err))
	default:
		outcome = "command_error"
		logger.Error("reattach failed", logging.Error(res.Err))
	}
	c.metrics.ReattachAttemptsTotal.WithLabelValues(outcome).Inc()

	ev := journal.NewEvent(journal.KindReattach, node.Name, outcome, errString(res.Err)).
		With("index", strconv.Itoa(node.PoolIndex))
	if res.SplitBrainSuspected {
		ev = ev.With("split_brain_suspected", "true")
	}
	if err := c.journal.Append(ctx, ev); err != nil {
		logger.Warn("failed to journal reattach", logging.Error(err))
	}
	return res
}

func (c *Coordinator) reattach(ctx context.Context, node cluster.Node, logger logging.Logger) Result {
	res := Result{Node: node}

	if c.prober != nil {
		res.Probe = c.prober.Probe(ctx, node)
		if !res.Probe.Reachable {
			res.Err = fmt.Errorf("%w: %s: %v", cluster.ErrNodeDown, node.Name, res.Probe.Err)
			return res
		}
		if res.Probe.IsPrimary() {
			// Attached anyway: the pool, not this tool, owns the routing decision.
			res.SplitBrainSuspected = true
			c.metrics.SplitBrainSuspectedTotal.Inc()
			logger.Error("node answers as primary while being reattached, suspected split brain")
		}
	}

	passFile, cleanup, err := c.writePassFile()
	if err != nil {
		res.Err = fmt.Errorf("%w: %v", cluster.ErrReattachFailed, err)
		return res
	}
	defer cleanup()

	cmdCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.runner.Run(cmdCtx, c.AttachCommand(node, passFile))
	res.Output = out.Stdout
	if err != nil {
		res.Err = fmt.Errorf("%w: %v", cluster.ErrReattachFailed, err)
		return res
	}

	res.Attached = true
	return res
}

// AttachCommand renders the pcp_attach_node invocation for node
func (c *Coordinator) AttachCommand(node cluster.Node, passFile string) command.Command {
	return command.Command{
		Path: c.pcp.AttachCommand,
		Args: []string{
			"-h", c.pcp.Host,
			"-p", strconv.Itoa(c.pcp.Port),
			"-U", c.pcp.User,
			"-n", strconv.Itoa(node.PoolIndex),
			"-w",
		},
		Env: []string{"PCPPASSFILE=" + passFile},
	}
}

// writePassFile writes a 0600 PCPPASSFILE (host:port:user:password)
func (c *Coordinator) writePassFile() (string, func(), error) {
	f, err := os.CreateTemp(c.tempDir, "pgha-pcppass-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create pcp password file: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }

	line := fmt.Sprintf("%s:%d:%s:%s\n", escapePass(c.pcp.Host), c.pcp.Port, escapePass(c.pcp.User), escapePass(c.pcp.Password))
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to restrict pcp password file: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write pcp password file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to close pcp password file: %w", err)
	}
	return f.Name(), cleanup, nil
}

// escapePass escapes ':' and '\' the way pcppass files expect
func escapePass(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == ':' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
