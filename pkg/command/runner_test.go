package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_Run(t *testing.T) {
	r := NewExecRunner(nil)

	res, err := r.Run(context.Background(), Command{Path: "/bin/sh", Args: []string{"-c", "echo hello; echo oops >&2"}})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "oops", res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
}

func TestExecRunner_RunEnvAndDir(t *testing.T) {
	dir := t.TempDir()
	r := NewExecRunner(nil)

	res, err := r.Run(context.Background(), Command{
		Path: "/bin/sh",
		Args: []string{"-c", "echo $PGHA_TEST_VALUE; pwd"},
		Env:  []string{"PGHA_TEST_VALUE=42"},
		Dir:  dir,
	})
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "42\n")
	assert.Contains(t, res.Stdout, resolved)
}

func TestExecRunner_RunExitCode(t *testing.T) {
	r := NewExecRunner(nil)

	res, err := r.Run(context.Background(), Command{Path: "/bin/sh", Args: []string{"-c", "echo nope >&2; exit 3"}})
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, err.Error(), "nope")
}

func TestExecRunner_RunMissingBinary(t *testing.T) {
	r := NewExecRunner(nil)

	res, err := r.Run(context.Background(), Command{Path: "/nonexistent/pcp_attach_node"})
	require.Error(t, err)
	assert.Equal(t, -1, res.ExitCode)
}

func TestExecRunner_RunContextCancel(t *testing.T) {
	r := NewExecRunner(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Run(ctx, Command{Path: "/bin/sh", Args: []string{"-c", "sleep 10"}})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecRunner_Start(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "ran")
	r := NewExecRunner(nil)

	pid, err := r.Start(Command{Path: "/bin/sh", Args: []string{"-c", "touch " + marker}})
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRecorder(t *testing.T) {
	r := &Recorder{Handler: func(_ context.Context, cmd Command) (Result, error) {
		if cmd.Path == "fail" {
			return Result{ExitCode: 1}, &ExitError{Command: cmd.Path, ExitCode: 1}
		}
		return Result{}, nil
	}}

	_, err := r.Run(context.Background(), Command{Path: "ok"})
	assert.NoError(t, err)
	_, err = r.Run(context.Background(), Command{Path: "fail"})
	assert.Error(t, err)
	_, _ = r.Start(Command{Path: "bg"})

	assert.Len(t, r.Calls(), 2)
	assert.Equal(t, "bg", r.Started()[0].Path)
	assert.Equal(t, "ok", r.Calls()[0].String())
}
