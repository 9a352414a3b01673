package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/command"
)

var (
	masterNode = cluster.Node{Name: "postgresql_master", Host: "postgresql_master", Port: 5432, DeclaredRole: cluster.RolePrimary}
	slaveNode  = cluster.Node{Name: "postgresql_slave", Host: "postgresql_slave", Port: 5432, DeclaredRole: cluster.RoleStandby, PoolIndex: 1}
)

func argAfter(cmd command.Command, flag string) string {
	for i := 0; i < len(cmd.Args)-1; i++ {
		if cmd.Args[i] == flag {
			return cmd.Args[i+1]
		}
	}
	return ""
}

// fakeBaseBackup writes a plausible data directory into the -D target.
func fakeBaseBackup(_ context.Context, cmd command.Command) (command.Result, error) {
	dir := argAfter(cmd, "-D")
	if err := os.MkdirAll(filepath.Join(dir, "base"), 0o755); err != nil {
		return command.Result{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, "PG_VERSION"), []byte("9.6\n"), 0o600); err != nil {
		return command.Result{}, err
	}
	return command.Result{}, nil
}

// promotedPeerBaseBackup copies a peer that was itself promoted through its
// trigger file at some point.
func promotedPeerBaseBackup(ctx context.Context, cmd command.Command) (command.Result, error) {
	res, err := fakeBaseBackup(ctx, cmd)
	if err != nil {
		return res, err
	}
	dir := argAfter(cmd, "-D")
	return res, os.WriteFile(filepath.Join(dir, "postgresql.trigger"), nil, 0o600)
}

// interruptedBaseBackup copies part of the data, then fails.
func interruptedBaseBackup(_ context.Context, cmd command.Command) (command.Result, error) {
	dir := argAfter(cmd, "-D")
	if err := os.MkdirAll(filepath.Join(dir, "base"), 0o755); err != nil {
		return command.Result{}, err
	}
	return command.Result{ExitCode: 1}, &command.ExitError{Command: "pg_basebackup", ExitCode: 1, Stderr: "connection reset"}
}

// fakeInitDB creates the marker in the -D target.
func fakeInitDB(_ context.Context, cmd command.Command) (command.Result, error) {
	dir := argAfter(cmd, "-D")
	if dir == "" {
		return command.Result{}, errors.New("no -D")
	}
	return command.Result{}, os.WriteFile(filepath.Join(dir, "PG_VERSION"), []byte("9.6\n"), 0o600)
}
