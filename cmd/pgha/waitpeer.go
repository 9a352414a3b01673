package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-pgha/pkg/monitor"
)

func newWaitPeerCommand(opts *rootOptions) *cobra.Command {
	var maxWait time.Duration

	cmd := &cobra.Command{
		Use:   "wait-peer",
		Short: "Poll the peer until it answers or the wait expires",
		Long: `Prints up_primary, up_standby or timed_out. Exits non-zero on timed_out so
shell entrypoints can branch on the result.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, opts, scopeNode)
			if err != nil {
				return err
			}
			defer rt.Close()

			topo, err := rt.topology()
			if err != nil {
				return err
			}
			if maxWait <= 0 {
				maxWait = rt.cfg.Monitor.MaxWait
			}

			outcome := monitor.WaitForPeer(ctx, rt.prober(), topo.Peer, maxWait, monitor.WaitOptions{
				Interval: rt.cfg.Monitor.Interval,
				Logger:   rt.logger,
				Metrics:  rt.metrics,
			})
			fmt.Fprintln(cmd.OutOrStdout(), outcome)
			if outcome == monitor.TimedOut {
				return fmt.Errorf("peer %s did not answer within %v", topo.Peer.Name, maxWait)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxWait, "max-wait", 0, "override monitor.max_wait")
	return cmd
}
