package trigger

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/logging"
	"github.com/dd0wney/cluso-pgha/pkg/metrics"
)

// TokenIssuer signs promotion tokens for a target node
type TokenIssuer interface {
	GenerateToken(issuer, node string) (string, error)
}

// ClientOptions configures a promotion Client
type ClientOptions struct {
	PrimaryPort int
	StandbyPort int
	Timeout     time.Duration
	// Issuer, when set, adds a bearer token to every request.
	Issuer     TokenIssuer
	IssuerName string
	HTTPClient *http.Client
	Logger     logging.Logger
	Metrics    *metrics.Registry
}

// Client asks a node to promote itself
type Client struct {
	primaryPort int
	standbyPort int
	issuer      TokenIssuer
	issuerName  string
	http        *http.Client
	logger      logging.Logger
	metrics     *metrics.Registry
}

// NewClient creates a promotion client
func NewClient(opts ClientOptions) *Client {
	c := &Client{
		primaryPort: opts.PrimaryPort,
		standbyPort: opts.StandbyPort,
		issuer:      opts.Issuer,
		issuerName:  opts.IssuerName,
		http:        opts.HTTPClient,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
	if c.primaryPort == 0 {
		c.primaryPort = 10010
	}
	if c.standbyPort == 0 {
		c.standbyPort = 10011
	}
	if c.issuerName == "" {
		c.issuerName = "pgpool"
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.logger == nil {
		c.logger = logging.NewNopLogger()
	}
	if c.metrics == nil {
		c.metrics = metrics.NewRegistry()
	}
	c.logger = c.logger.With(logging.Component("trigger-client"))
	return c
}

// URLFor returns the promotion URL of node. The port follows the node's
// declared role.
func (c *Client) URLFor(node cluster.Node) string {
	port := c.standbyPort
	if node.DeclaredRole == cluster.RolePrimary {
		port = c.primaryPort
	}
	return "http://" + net.JoinHostPort(node.Host, strconv.Itoa(port)) + FailoverPath
}

// Promote calls node's promotion endpoint once. Anything but 200 with the
// success body is an error wrapping cluster.ErrPromotionFailed.
func (c *Client) Promote(ctx context.Context, node cluster.Node) error {
	url := c.URLFor(node)
	logger := c.logger.With(logging.Node(node.Name, node.Addr()), logging.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", cluster.ErrPromotionFailed, err)
	}

	if c.issuer != nil {
		token, err := c.issuer.GenerateToken(c.issuerName, node.Name)
		if err != nil {
			c.metrics.TriggerCallsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("%w: signing token: %v", cluster.ErrPromotionFailed, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.TriggerCallsTotal.WithLabelValues("error").Inc()
		logger.Error("promotion request failed", logging.Error(err))
		return fmt.Errorf("%w: %s: %v", cluster.ErrPromotionFailed, node.Name, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != SuccessBody {
		c.metrics.TriggerCallsTotal.WithLabelValues("rejected").Inc()
		logger.Error("promotion rejected",
			logging.Int("status", resp.StatusCode),
			logging.String("body", strings.TrimSpace(string(body))),
		)
		return fmt.Errorf("%w: %s answered %d", cluster.ErrPromotionFailed, node.Name, resp.StatusCode)
	}

	c.metrics.TriggerCallsTotal.WithLabelValues("success").Inc()
	logger.Info("promotion accepted")
	return nil
}
