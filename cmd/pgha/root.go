package main

import (
	"github.com/spf13/cobra"
)

// rootOptions holds global flags for all commands
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "pgha",
		Short:         "Failover coordination for a PostgreSQL primary/standby pair behind pgpool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./pgha.yaml or /etc/pgha/pgha.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	cmd.AddCommand(newNodeCommand(opts))
	cmd.AddCommand(newTriggerCommand(opts))
	cmd.AddCommand(newWaitPeerCommand(opts))
	cmd.AddCommand(newFailoverCommand(opts))
	cmd.AddCommand(newRepairCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newConfigCommand(opts))

	return cmd
}
