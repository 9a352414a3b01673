package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-pgha/pkg/logging"
)

func newRepairCommand(opts *rootOptions) *cobra.Command {
	var (
		index int
		delay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Reattach a backend to pgpool after an optional delay",
		Long: `Waits --delay, probes the node and runs pcp_attach_node once. A node that is
still down is reported and left detached; there is no retry.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, opts, scopePool)
			if err != nil {
				return err
			}
			defer rt.Close()

			node, _, err := rt.poolNode(index)
			if err != nil {
				return err
			}

			if delay > 0 {
				rt.logger.Info("delaying reattach", logging.Node(node.Name, node.Addr()), logging.Duration("delay", delay))
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			res := rt.coordinator().Reattach(ctx, node)
			if res.Err != nil {
				return res.Err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reattached %s as backend %d\n", node.Name, node.PoolIndex)
			return nil
		},
	}

	cmd.Flags().IntVar(&index, "index", -1, "pgpool backend index to reattach")
	cmd.Flags().DurationVar(&delay, "delay", 0, "wait before the attempt")
	_ = cmd.MarkFlagRequired("index")
	return cmd
}
