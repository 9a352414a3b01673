package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-pgha/pkg/failover"
	"github.com/dd0wney/cluso-pgha/pkg/logging"
	"github.com/dd0wney/cluso-pgha/pkg/repair"
)

func newFailoverCommand(opts *rootOptions) *cobra.Command {
	var failedIndex int

	cmd := &cobra.Command{
		Use:   "failover",
		Short: "Promote the twin of a failed backend and schedule its reattachment",
		Long: `Meant for pgpool's failover_command:

  failover_command = 'pgha failover --failed-index %d'

The twin of the failed backend is asked to promote itself, then the failed node
is scheduled for reattachment after failover.reattach_delay. With
failover.detach the reattach runs in a detached child so this command returns
at once; otherwise it waits for the attempt.

The command exits zero even when a step fails so pgpool is never blocked; the
outcome is logged and journaled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, opts, scopePool)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runFailover(ctx, cmd.OutOrStdout(), rt, opts, failedIndex)
		},
	}

	cmd.Flags().IntVar(&failedIndex, "failed-index", -1, "pgpool backend index of the failed node (%d)")
	_ = cmd.MarkFlagRequired("failed-index")
	return cmd
}

func runFailover(ctx context.Context, out io.Writer, rt *runtime, opts *rootOptions, failedIndex int) error {
	failed, peer, err := rt.poolNode(failedIndex)
	if err != nil {
		return err
	}

	client, err := rt.triggerClient()
	if err != nil {
		return err
	}

	var (
		scheduler repair.Scheduler
		timers    *repair.TimerScheduler
		results   = make(chan repair.Result, 1)
	)
	if rt.cfg.Failover.Detach {
		ps, err := repair.NewProcessScheduler(rt.runner, "", configArgs(opts), rt.logger, rt.metrics)
		if err != nil {
			return err
		}
		scheduler = ps
	} else {
		timers = repair.NewTimerScheduler(ctx, rt.coordinator(), func(r repair.Result) { results <- r }, rt.logger, rt.metrics)
		scheduler = timers
	}

	ctrl := failover.NewController(failover.Options{
		Prober:         rt.prober(),
		Promoter:       client,
		Scheduler:      scheduler,
		ReattachDelay:  rt.cfg.Failover.ReattachDelay,
		PromoteTimeout: rt.cfg.Trigger.RequestTimeout,
		Journal:        rt.journal,
		Logger:         rt.logger,
		Metrics:        rt.metrics,
	})

	rep := ctrl.OnPrimaryDeclaredDown(ctx, failed, peer)
	fmt.Fprintf(out, "failover %s: promoted=%t reattach=%s\n", rep.Result(), rep.Promoted, rep.Reattach.ID)

	if timers != nil && rep.ScheduleErr == nil {
		rt.logger.Info("waiting for in-process reattach", logging.Duration("delay", rt.cfg.Failover.ReattachDelay))
		select {
		case res := <-results:
			fmt.Fprintf(out, "reattach %s: attached=%t\n", failed.Name, res.Attached)
		case <-ctx.Done():
			timers.Stop()
		}
	}
	return nil
}
