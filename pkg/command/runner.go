// Package command runs the external PostgreSQL and pgpool tools pgha drives.
// Everything that forks a process goes through a Runner so callers can be
// tested without the binaries installed.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-pgha/pkg/logging"
)

// Command describes one invocation
type Command struct {
	Path string
	Args []string
	// Env is appended to the current environment.
	Env []string
	Dir string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// Result captures a finished command
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner runs commands to completion, or starts them detached
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
	Start(cmd Command) (pid int, err error)
}

// ExitError reports a non-zero exit status
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	logger logging.Logger
}

// NewExecRunner creates a runner that logs each invocation at DEBUG
func NewExecRunner(logger logging.Logger) *ExecRunner {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ExecRunner{logger: logger.With(logging.Component("command"))}
}

// Run executes cmd and waits for it. A non-zero exit is returned as *ExitError
// together with the captured output.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	timer := logging.StartTimer(r.logger, "running command", logging.String("cmd", cmd.String()))
	err := c.Run()

	res := Result{
		Stdout: stdout.String(),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Duration = timer.End()
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		res.Duration = timer.EndError(err)
		return res, &ExitError{Command: cmd.Path, ExitCode: res.ExitCode, Stderr: res.Stderr}
	default:
		res.ExitCode = -1
		res.Duration = timer.EndError(err)
		return res, fmt.Errorf("failed to run %s: %w", cmd.Path, err)
	}
}

// Start launches cmd in its own session and does not wait for it. The child
// survives the exit of the calling process.
func (r *ExecRunner) Start(cmd Command) (int, error) {
	c := exec.Command(cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := c.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}
	pid := c.Process.Pid
	// Reap in the background so a long-lived parent does not collect zombies.
	go func() { _ = c.Wait() }()

	r.logger.Info("started detached command", logging.String("cmd", cmd.String()), logging.Int("pid", pid))
	return pid, nil
}

// Exec replaces the current process image with cmd. It only returns on error.
func Exec(cmd Command) error {
	path, err := exec.LookPath(cmd.Path)
	if err != nil {
		return fmt.Errorf("failed to locate %s: %w", cmd.Path, err)
	}
	argv := append([]string{path}, cmd.Args...)
	env := append(os.Environ(), cmd.Env...)
	return syscall.Exec(path, argv, env)
}
