// Package probe answers one question about a database node: is it reachable,
// and if so, is it replaying WAL (standby) or not (primary).
package probe

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/logging"
	"github.com/dd0wney/cluso-pgha/pkg/metrics"
)

// HealthQuery is the only statement a probe runs
const HealthQuery = "select pg_is_in_recovery()"

// Prober probes a node. Implementations never panic and never return an
// error; failure is part of the Result.
type Prober interface {
	Probe(ctx context.Context, node cluster.Node) Result
}

// Func adapts a function to the Prober interface
type Func func(ctx context.Context, node cluster.Node) Result

// Probe calls f(ctx, node)
func (f Func) Probe(ctx context.Context, node cluster.Node) Result {
	return f(ctx, node)
}

// Conn is the subset of *pgx.Conn a probe needs
type Conn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// DialFunc opens a session to node
type DialFunc func(ctx context.Context, node cluster.Node, creds Credentials) (Conn, error)

// Credentials identify the fixed system account used for probing
type Credentials struct {
	User     string
	Password string
	Database string
	SSLMode  string
}

// Options configures a PGProber
type Options struct {
	Credentials Credentials
	// Timeout bounds the whole probe: connect, query and close.
	Timeout time.Duration
	Dial    DialFunc
	Logger  logging.Logger
	Metrics *metrics.Registry
}

// PGProber probes nodes with a fresh pgx connection per call
type PGProber struct {
	creds   Credentials
	timeout time.Duration
	dial    DialFunc
	logger  logging.Logger
	metrics *metrics.Registry
}

// NewPGProber creates a prober. A nil Dial uses pgx.
func NewPGProber(opts Options) *PGProber {
	p := &PGProber{
		creds:   opts.Credentials,
		timeout: opts.Timeout,
		dial:    opts.Dial,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if p.timeout <= 0 {
		p.timeout = 3 * time.Second
	}
	if p.dial == nil {
		p.dial = DialPGX
	}
	if p.logger == nil {
		p.logger = logging.NewNopLogger()
	}
	if p.metrics == nil {
		p.metrics = metrics.NewRegistry()
	}
	p.logger = p.logger.With(logging.Component("probe"))
	return p
}

// Probe opens a session, runs HealthQuery and closes the session on every path
func (p *PGProber) Probe(ctx context.Context, node cluster.Node) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Down(node, FailureConnect, fmt.Errorf("%w: probe panicked: %v", cluster.ErrTransientUnreachable, r))
		}
		res.Latency = time.Since(start)
		p.metrics.RecordProbe(node.Name, res.Outcome(), res.Latency)
		p.logger.Debug("probe finished",
			logging.Node(node.Name, node.Addr()),
			logging.Outcome(res.Outcome()),
			logging.Latency(res.Latency),
		)
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dial(ctx, node, p.creds)
	if err != nil {
		return Down(node, FailureConnect, fmt.Errorf("%w: %s: %v", cluster.ErrTransientUnreachable, node.Addr(), err))
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second)
		defer closeCancel()
		_ = conn.Close(closeCtx)
	}()

	var inRecovery bool
	if err := conn.QueryRow(ctx, HealthQuery).Scan(&inRecovery); err != nil {
		return Down(node, FailureQuery, fmt.Errorf("%w: health query on %s: %v", cluster.ErrTransientUnreachable, node.Addr(), err))
	}

	return Up(node, inRecovery)
}

// DialPGX connects with pgx. The deadline of ctx doubles as the connect timeout.
func DialPGX(ctx context.Context, node cluster.Node, creds Credentials) (Conn, error) {
	cfg, err := pgx.ParseConfig(ConnString(node, creds))
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		cfg.ConnectTimeout = time.Until(deadline)
	}
	return pgx.ConnectConfig(ctx, cfg)
}

// ConnString renders a postgres:// URL for node. The password is escaped.
func ConnString(node cluster.Node, creds Credentials) string {
	sslMode := creds.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(creds.User, creds.Password),
		Host:     net.JoinHostPort(node.Host, strconv.Itoa(node.Port)),
		Path:     "/" + creds.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}
