package trigger

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/cluso-pgha/pkg/auth"
	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/health"
	"github.com/dd0wney/cluso-pgha/pkg/logging"
	"github.com/dd0wney/cluso-pgha/pkg/metrics"
	"github.com/dd0wney/cluso-pgha/pkg/server"
)

const (
	// FailoverPath is the promotion endpoint
	FailoverPath = "/failover"
	// SuccessBody is the fixed response of a successful promotion request
	SuccessBody = "Success"
)

// ServerOptions configures a promotion Server
type ServerOptions struct {
	Node     cluster.Node
	Addr     string
	Sentinel *Sentinel
	// Validator, when set, requires a bearer token issued for Node.
	Validator   auth.TokenValidator
	Health      *health.HealthChecker
	Metrics     *metrics.Registry
	MetricsPath string
	Logger      logging.Logger
}

// Server answers promotion requests for one node
type Server struct {
	node      cluster.Node
	sentinel  *Sentinel
	validator auth.TokenValidator
	metrics   *metrics.Registry
	logger    logging.Logger
	handler   http.Handler
	gs        *server.GracefulServer
}

// NewServer builds the promotion server and its routes
func NewServer(opts ServerOptions) *Server {
	s := &Server{
		node:      opts.Node,
		sentinel:  opts.Sentinel,
		validator: opts.Validator,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
	if s.metrics == nil {
		s.metrics = metrics.NewRegistry()
	}
	if s.logger == nil {
		s.logger = logging.NewNopLogger()
	}
	s.logger = s.logger.With(logging.Component("trigger"), logging.Node(s.node.Name, s.node.Addr()))

	mux := http.NewServeMux()
	mux.HandleFunc(FailoverPath, s.handleFailover)
	if opts.Health != nil {
		opts.Health.Register(mux)
	}
	metricsPath := opts.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	mux.Handle(metricsPath, promhttp.HandlerFor(s.metrics.GetPrometheusRegistry(), promhttp.HandlerOpts{}))

	s.handler = metricsMiddleware(s.metrics, mux)
	s.gs = server.NewGracefulServer(opts.Addr, s.handler, opts.Logger)
	return s
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Listen binds the port without serving
func (s *Server) Listen() error {
	return s.gs.Listen()
}

// Addr returns the bound address
func (s *Server) Addr() string {
	return s.gs.Addr()
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	return s.gs.Run(ctx, 5*time.Second)
}

// SetConfigReloadFunc forwards to the underlying server's SIGHUP hook
func (s *Server) SetConfigReloadFunc(fn server.ConfigReloadFunc) {
	s.gs.SetConfigReloadFunc(fn)
}

func (s *Server) handleFailover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logger := s.logger.With(logging.String("remote", r.RemoteAddr))

	if s.validator != nil {
		claims, err := auth.AuthorizePromotion(r, s.validator, s.node.Name)
		if err != nil {
			s.metrics.PromotionRequestsTotal.WithLabelValues("unauthorized").Inc()
			logger.Warn("rejected promotion request", logging.Error(err))
			status := http.StatusUnauthorized
			if errors.Is(err, auth.ErrWrongNode) {
				status = http.StatusForbidden
			}
			http.Error(w, http.StatusText(status), status)
			return
		}
		logger = logger.With(logging.String("issuer", claims.Issuer), logging.RequestID(claims.ID))
	}

	created, err := s.sentinel.Promote()
	if err != nil {
		s.metrics.PromotionRequestsTotal.WithLabelValues("error").Inc()
		logger.Error("failed to write promotion trigger", logging.Error(err), logging.Path(s.sentinel.Path()))
		http.Error(w, "failed to write trigger file", http.StatusInternalServerError)
		return
	}

	if created {
		s.metrics.PromotionRequestsTotal.WithLabelValues("promoted").Inc()
		logger.Warn("promotion requested, trigger file written", logging.Path(s.sentinel.Path()))
	} else {
		s.metrics.PromotionRequestsTotal.WithLabelValues("duplicate").Inc()
		logger.Info("promotion already requested", logging.Path(s.sentinel.Path()))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, SuccessBody)
}
