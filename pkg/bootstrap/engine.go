package bootstrap

import (
	"context"

	"github.com/dd0wney/cluso-pgha/pkg/command"
)

// Engine hands the prepared data directory to the database server
type Engine interface {
	Start(ctx context.Context, dataDir string) error
}

// ExecEngine replaces the current process with `postgres -D <dataDir>`
type ExecEngine struct {
	Path string
	Args []string
	exec func(command.Command) error
}

// NewExecEngine creates an engine for the server binary at path
func NewExecEngine(path string, extraArgs ...string) *ExecEngine {
	return &ExecEngine{Path: path, Args: extraArgs, exec: command.Exec}
}

// Command renders the server invocation
func (e *ExecEngine) Command(dataDir string) command.Command {
	return command.Command{Path: e.Path, Args: append([]string{"-D", dataDir}, e.Args...)}
}

// Start only returns if the exec failed
func (e *ExecEngine) Start(_ context.Context, dataDir string) error {
	return e.exec(e.Command(dataDir))
}
