package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/failover"
	"github.com/dd0wney/cluso-pgha/pkg/health"
	"github.com/dd0wney/cluso-pgha/pkg/logging"
	"github.com/dd0wney/cluso-pgha/pkg/monitor"
	"github.com/dd0wney/cluso-pgha/pkg/repair"
	"github.com/dd0wney/cluso-pgha/pkg/server"
)

func newWatchCommand(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the primary and fail over when its retry budget runs out",
		Long: `Probes the configured primary every monitor.interval. After
monitor.retry_budget consecutive failures the standby is promoted and the old
primary is reattached in-process after failover.reattach_delay. One failover
is made per outage; afterwards the promoted node is the one watched. Health and metrics are served on --listen.

Use this where pgpool's own health check is not driving failover_command.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, opts, scopePool)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runWatch(ctx, rt, opts, listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":9187", "address for /health, /ready, /live and /metrics")
	return cmd
}

func runWatch(ctx context.Context, rt *runtime, opts *rootOptions, listen string) error {
	primary, standby, err := rt.poolNode(0)
	if err != nil {
		return err
	}

	client, err := rt.triggerClient()
	if err != nil {
		return err
	}
	prober := rt.prober()

	timers := repair.NewTimerScheduler(ctx, rt.coordinator(), nil, rt.logger, rt.metrics)
	defer func() {
		if n := timers.Stop(); n > 0 {
			rt.logger.Warn("pending reattachments cancelled at shutdown", logging.Int("count", n))
		}
	}()

	ctrl := failover.NewController(failover.Options{
		Prober:         prober,
		Promoter:       client,
		Scheduler:      timers,
		ReattachDelay:  rt.cfg.Failover.ReattachDelay,
		PromoteTimeout: rt.cfg.Trigger.RequestTimeout,
		Journal:        rt.journal,
		Logger:         rt.logger,
		Metrics:        rt.metrics,
	})

	var detector *monitor.Detector
	detector = monitor.NewDetector(prober, primary, standby, monitor.DetectorOptions{
		Interval:    rt.cfg.Monitor.Interval,
		RetryBudget: rt.cfg.Monitor.RetryBudget,
		OnDecision: func(d cluster.FailoverDecision) {
			// Follow the promotion so a later loss of the new primary is seen.
			if rep := ctrl.Handle(ctx, d); rep.SurvivorPrimary() {
				detector.Promoted(d.PromotedNode)
			}
		},
		Logger:  rt.logger,
		Metrics: rt.metrics,
	})

	hc := health.NewHealthChecker()
	hc.Identify(rt.cfg.Pool.PCPHost, "watch")
	hc.RegisterLivenessCheck("process", health.SimpleCheck("process"))
	hc.RegisterReadinessCheck("peer", health.PeerCheck(detector.Failures, rt.cfg.Monitor.RetryBudget))
	hc.RegisterCheck("memory", health.MemoryCheck())

	mux := http.NewServeMux()
	hc.Register(mux)
	mux.Handle(rt.cfg.Metrics.Path, promhttp.HandlerFor(rt.metrics.GetPrometheusRegistry(), promhttp.HandlerOpts{}))

	gs := server.NewGracefulServer(listen, mux, rt.logger)
	gs.SetConfigReloadFunc(func() error { return reloadLogLevelForPool(rt, opts) })
	if err := gs.Listen(); err != nil {
		return err
	}

	rt.logger.Info("watching primary",
		logging.Node(primary.Name, primary.Addr()),
		logging.Duration("interval", rt.cfg.Monitor.Interval),
		logging.Int("retry_budget", rt.cfg.Monitor.RetryBudget),
		logging.String("listen", gs.Addr()),
	)

	go reportSystemMetrics(ctx, rt)

	detected := make(chan struct{})
	go func() {
		defer close(detected)
		detector.Run(ctx)
	}()

	err = gs.Run(ctx, 5*time.Second)
	<-detected
	return err
}
