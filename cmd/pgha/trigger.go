package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/config"
	"github.com/dd0wney/cluso-pgha/pkg/health"
	"github.com/dd0wney/cluso-pgha/pkg/logging"
	"github.com/dd0wney/cluso-pgha/pkg/trigger"
)

func newTriggerCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Serve the promotion endpoint for this node",
		Long: `Listens on the role-specific trigger port (10010 for the declared primary,
10011 otherwise) and answers GET /failover by creating the promotion sentinel in
the data directory. Also serves /health, /ready, /live and /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, opts, scopeNode)
			if err != nil {
				return err
			}
			defer rt.Close()

			srv, err := buildTriggerServer(rt)
			if err != nil {
				return err
			}
			srv.SetConfigReloadFunc(func() error { return reloadLogLevel(rt, opts) })

			if err := srv.Listen(); err != nil {
				return err
			}
			rt.logger.Info("promotion endpoint listening", logging.String("addr", srv.Addr()))
			go reportSystemMetrics(ctx, rt)
			return srv.Run(ctx)
		},
	}
}

func buildTriggerServer(rt *runtime) (*trigger.Server, error) {
	cfg := rt.cfg
	topo, err := rt.topology()
	if err != nil {
		return nil, err
	}
	self := topo.Self

	sentinel := trigger.NewSentinel(cfg.Node.DataDir, cfg.Trigger.FileName)

	hc := health.NewHealthChecker()
	hc.Identify(self.Name, "trigger")
	hc.RegisterLivenessCheck("process", health.SimpleCheck("process"))
	hc.RegisterReadinessCheck("data_dir", health.DataDirCheck(cfg.Node.DataDir, cfg.Bootstrap.MarkerFile))
	hc.RegisterCheck("database", health.DatabaseCheck(rt.prober(), localNode(self), cfg.Probe.ConnectTimeout))
	hc.RegisterCheck("promotion", health.PromotionCheck(sentinel.Path()))
	hc.RegisterCheck("memory", health.MemoryCheck())

	opts := trigger.ServerOptions{
		Node:        self,
		Addr:        net.JoinHostPort(cfg.Trigger.ListenAddr, strconv.Itoa(cfg.Trigger.PortFor(self.DeclaredRole == cluster.RolePrimary))),
		Sentinel:    sentinel,
		Health:      hc,
		Metrics:     rt.metrics,
		MetricsPath: cfg.Metrics.Path,
		Logger:      rt.logger,
	}
	m, err := rt.jwtManager()
	if err != nil {
		return nil, err
	}
	if m != nil {
		opts.Validator = m
	}
	return trigger.NewServer(opts), nil
}

// localNode addresses the database beside this process
func localNode(self cluster.Node) cluster.Node {
	self.Host = "127.0.0.1"
	return self
}

// reloadLogLevel re-reads the config on SIGHUP. Only the log level is
// applied; everything else needs a restart.
func reloadLogLevel(rt *runtime, opts *rootOptions) error {
	return applyLogLevel(rt, config.Load, opts)
}

func reloadLogLevelForPool(rt *runtime, opts *rootOptions) error {
	return applyLogLevel(rt, config.LoadForPool, opts)
}

func applyLogLevel(rt *runtime, load func(string) (*config.Config, error), opts *rootOptions) error {
	cfg, err := load(opts.configPath)
	if err != nil {
		return err
	}
	rt.logger.SetLevel(logging.ParseLevel(cfg.Logging.Level))
	rt.logger.Info("log level reloaded", logging.String("level", cfg.Logging.Level))
	return nil
}

func reportSystemMetrics(ctx context.Context, rt *runtime) {
	start := time.Now()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		rt.metrics.UpdateSystemMetrics(start)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
