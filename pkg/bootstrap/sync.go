// Package bootstrap prepares the local data directory before PostgreSQL
// starts: seeding a standby from its peer, initializing a fresh primary, and
// deciding which of the two a node needs.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/command"
	"github.com/dd0wney/cluso-pgha/pkg/logging"
	"github.com/dd0wney/cluso-pgha/pkg/metrics"
	"github.com/dd0wney/cluso-pgha/pkg/trigger"
)

const partialSuffix = ".partial"

// SyncOptions configures a Syncer
type SyncOptions struct {
	BaseBackupCommand   string
	ReplicationUser     string
	ReplicationPassword string
	// MarkerFile marks a complete data directory. Defaults to PG_VERSION.
	MarkerFile string
	// WALDir is pg_xlog or pg_wal depending on server version.
	WALDir          string
	RecoveryFormat  string
	TriggerFile     string
	ApplicationName string
	Runner          command.Runner
	Logger          logging.Logger
	Metrics         *metrics.Registry
}

// Syncer seeds a data directory from a running peer with a base backup.
// The copy is staged in <target>.partial and only renamed into place once
// it is complete.
type Syncer struct {
	opts    SyncOptions
	logger  logging.Logger
	metrics *metrics.Registry
}

// NewSyncer creates a Syncer
func NewSyncer(opts SyncOptions) *Syncer {
	if opts.MarkerFile == "" {
		opts.MarkerFile = "PG_VERSION"
	}
	if opts.WALDir == "" {
		opts.WALDir = "pg_xlog"
	}
	if opts.TriggerFile == "" {
		opts.TriggerFile = "postgresql.trigger"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	reg := opts.Metrics
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Syncer{opts: opts, logger: logger.With(logging.Component("bootstrap-sync")), metrics: reg}
}

// SyncFromPeer copies source's data into target. A target that already
// carries the marker is rejected with ErrAlreadyInitialized. Any other
// failure leaves neither target nor the staging directory behind and wraps
// ErrPartialBootstrap.
func (s *Syncer) SyncFromPeer(ctx context.Context, source cluster.Node, target string) error {
	start := time.Now()
	logger := s.logger.With(logging.Node(source.Name, source.Addr()), logging.Path(target))

	if exists(filepath.Join(target, s.opts.MarkerFile)) {
		s.metrics.RecordBootstrap("sync", "rejected", time.Since(start))
		return fmt.Errorf("%w: %s", cluster.ErrAlreadyInitialized, target)
	}

	logger.Info("syncing data from peer")
	partial := target + partialSuffix
	if err := s.sync(ctx, source, target, partial); err != nil {
		if rmErr := os.RemoveAll(partial); rmErr != nil {
			logger.Error("failed to remove staging directory", logging.Error(rmErr))
		}
		s.metrics.RecordBootstrap("sync", "failed", time.Since(start))
		logger.Error("sync from peer failed", logging.Error(err))
		if errors.Is(err, cluster.ErrPartialBootstrap) {
			return err
		}
		return fmt.Errorf("%w: %v", cluster.ErrPartialBootstrap, err)
	}

	d := time.Since(start)
	s.metrics.RecordBootstrap("sync", "ok", d)
	logger.Info("sync from peer complete", logging.Latency(d))
	return nil
}

func (s *Syncer) sync(ctx context.Context, source cluster.Node, target, partial string) error {
	if err := os.RemoveAll(partial); err != nil {
		return fmt.Errorf("failed to remove stale staging directory: %w", err)
	}
	// Anything left in target is an incomplete earlier copy.
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("failed to clear target: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	if _, err := s.opts.Runner.Run(ctx, s.BaseBackupCommand(source, partial)); err != nil {
		return fmt.Errorf("base backup failed: %w", err)
	}

	// The source may hold a trigger file from an earlier failover. A standby
	// seeded with it would promote itself on first start.
	stale := trigger.NewSentinel(partial, s.opts.TriggerFile)
	if stale.Exists() {
		s.logger.Warn("removing trigger file copied from peer", logging.Path(stale.Path()))
	}
	if err := stale.Clear(); err != nil {
		return err
	}

	err := WriteRecovery(partial, RecoveryParams{
		Format:          s.opts.RecoveryFormat,
		Host:            source.Host,
		Port:            source.Port,
		User:            s.opts.ReplicationUser,
		Password:        s.opts.ReplicationPassword,
		ApplicationName: s.opts.ApplicationName,
		TriggerFile:     filepath.Join(target, s.opts.TriggerFile),
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(partial, s.opts.WALDir, "archive_status"), 0o700); err != nil {
		return fmt.Errorf("failed to create archive_status: %w", err)
	}

	if !exists(filepath.Join(partial, s.opts.MarkerFile)) {
		return fmt.Errorf("%w: base backup produced no %s", cluster.ErrPartialBootstrap, s.opts.MarkerFile)
	}

	if err := os.Chmod(partial, 0o700); err != nil {
		return fmt.Errorf("failed to set data directory mode: %w", err)
	}
	if err := os.Rename(partial, target); err != nil {
		return fmt.Errorf("failed to move staged copy into place: %w", err)
	}
	return syncDir(filepath.Dir(target))
}

// BaseBackupCommand renders the pg_basebackup invocation into dir
func (s *Syncer) BaseBackupCommand(source cluster.Node, dir string) command.Command {
	cmd := command.Command{
		Path: s.opts.BaseBackupCommand,
		Args: []string{
			"-D", dir,
			"-h", source.Host,
			"-p", strconv.Itoa(source.Port),
			"-U", s.opts.ReplicationUser,
			"-X", "stream",
			"-w",
			"-v",
		},
	}
	if s.opts.ReplicationPassword != "" {
		cmd.Env = []string{"PGPASSWORD=" + s.opts.ReplicationPassword}
	}
	return cmd
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", dir, err)
	}
	return nil
}
