package command

import (
	"context"
	"sync"
)

// Recorder is a Runner that records invocations and answers from a script.
// It lets other packages test command-driven flows without the binaries.
type Recorder struct {
	mu      sync.Mutex
	calls   []Command
	started []Command
	// Handler decides the outcome of Run; nil means success.
	Handler func(ctx context.Context, cmd Command) (Result, error)
}

// Run records cmd and delegates to Handler
func (r *Recorder) Run(ctx context.Context, cmd Command) (Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	h := r.Handler
	r.mu.Unlock()

	if h == nil {
		return Result{}, nil
	}
	return h(ctx, cmd)
}

// Start records cmd as started
func (r *Recorder) Start(cmd Command) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, cmd)
	return 4242, nil
}

// Calls returns the commands passed to Run
func (r *Recorder) Calls() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.calls...)
}

// Started returns the commands passed to Start
func (r *Recorder) Started() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.started...)
}
