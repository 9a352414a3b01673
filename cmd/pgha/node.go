package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-pgha/pkg/bootstrap"
	"github.com/dd0wney/cluso-pgha/pkg/command"
	"github.com/dd0wney/cluso-pgha/pkg/logging"
)

func newNodeCommand(opts *rootOptions) *cobra.Command {
	var noExec bool

	cmd := &cobra.Command{
		Use:   "node",
		Short: "Prepare the local data directory and start PostgreSQL",
		Long: `Decides how this node comes up from its service name and its peer's state:
seed a standby from the running primary, initialize a fresh primary, or start on
existing data. With HA enabled the promotion endpoint is started as a detached
process before PostgreSQL replaces this one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, opts, scopeNode)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runNode(ctx, rt, opts, noExec)
		},
	}

	cmd.Flags().BoolVar(&noExec, "no-exec", false, "prepare the data directory but do not start PostgreSQL")
	return cmd
}

func runNode(ctx context.Context, rt *runtime, opts *rootOptions, noExec bool) error {
	cfg := rt.cfg
	topo, err := rt.topology()
	if err != nil {
		return err
	}

	b := cfg.Bootstrap
	starterOpts := bootstrap.StarterOptions{
		Topology:     topo,
		DataDir:      cfg.Node.DataDir,
		MarkerFile:   b.MarkerFile,
		Prober:       rt.prober(),
		MaxWait:      cfg.Monitor.MaxWait,
		WaitInterval: cfg.Monitor.Interval,
		Syncer: bootstrap.NewSyncer(bootstrap.SyncOptions{
			BaseBackupCommand:   b.BaseBackupCommand,
			ReplicationUser:     b.ReplicationUser,
			ReplicationPassword: rt.secrets.Lookup(b.ReplicationPasswordSecret),
			MarkerFile:          b.MarkerFile,
			WALDir:              b.WALDir,
			RecoveryFormat:      b.RecoveryFormat,
			TriggerFile:         cfg.Trigger.FileName,
			ApplicationName:     topo.Self.Name,
			Runner:              rt.runner,
			Logger:              rt.logger,
			Metrics:             rt.metrics,
		}),
		Initializer:    bootstrap.NewInitializer(b.InitDBCommand, b.MarkerFile, rt.runner, rt.logger, rt.metrics),
		RejoinDiverged: b.RejoinDiverged,
		Journal:        rt.journal,
		Logger:         rt.logger,
		Metrics:        rt.metrics,
	}
	if !noExec {
		starterOpts.Engine = closingEngine{Engine: bootstrap.NewExecEngine(b.PostgresCommand), close: rt.Close}
	}

	if topo.HAEnabled && !noExec {
		// The exec below replaces this process, so the endpoint must live in its own.
		exe, err := os.Executable()
		if err != nil {
			return err
		}
		args := append([]string{"trigger"}, configArgs(opts)...)
		pid, err := rt.runner.Start(command.Command{Path: exe, Args: args})
		if err != nil {
			return err
		}
		rt.logger.Info("promotion endpoint started", logging.Int("pid", pid))
	}

	plan, err := bootstrap.NewStarter(starterOpts).Run(ctx)
	if err != nil {
		return err
	}
	rt.logger.Info("node prepared",
		logging.String("action", string(plan.Action)),
		logging.Role(plan.Role.String()),
	)
	return nil
}

// closingEngine flushes the journal before the process image is replaced
type closingEngine struct {
	bootstrap.Engine
	close func()
}

func (e closingEngine) Start(ctx context.Context, dataDir string) error {
	e.close()
	return e.Engine.Start(ctx, dataDir)
}
