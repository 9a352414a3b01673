package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/command"
	"github.com/dd0wney/cluso-pgha/pkg/logging"
	"github.com/dd0wney/cluso-pgha/pkg/metrics"
)

// Initializer creates a fresh cluster in an empty data directory
type Initializer struct {
	initdb  string
	marker  string
	runner  command.Runner
	logger  logging.Logger
	metrics *metrics.Registry
}

// NewInitializer creates an Initializer running initdbCommand
func NewInitializer(initdbCommand, marker string, runner command.Runner, logger logging.Logger, reg *metrics.Registry) *Initializer {
	if marker == "" {
		marker = "PG_VERSION"
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Initializer{
		initdb:  initdbCommand,
		marker:  marker,
		runner:  runner,
		logger:  logger.With(logging.Component("bootstrap-init")),
		metrics: reg,
	}
}

// Initialize runs initdb in dataDir and creates the WAL archive directory
func (i *Initializer) Initialize(ctx context.Context, dataDir string) error {
	start := time.Now()
	if exists(filepath.Join(dataDir, i.marker)) {
		i.metrics.RecordBootstrap("init", "rejected", time.Since(start))
		return fmt.Errorf("%w: %s", cluster.ErrAlreadyInitialized, dataDir)
	}

	timer := logging.StartTimer(i.logger, "initializing data directory", logging.Path(dataDir))
	if err := i.initialize(ctx, dataDir); err != nil {
		timer.EndError(err)
		i.metrics.RecordBootstrap("init", "failed", time.Since(start))
		return err
	}
	i.metrics.RecordBootstrap("init", "ok", timer.End())
	return nil
}

func (i *Initializer) initialize(ctx context.Context, dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.Chmod(dataDir, 0o700); err != nil {
		return fmt.Errorf("failed to set data directory mode: %w", err)
	}
	if _, err := i.runner.Run(ctx, command.Command{Path: i.initdb, Args: []string{"-D", dataDir}}); err != nil {
		return fmt.Errorf("initdb failed: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dataDir, "archive"), 0o700); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	return nil
}
