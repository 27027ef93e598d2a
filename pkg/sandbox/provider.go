// Package sandbox manages remote execution environments: container
// lifecycle, session acquire/resume/release, and the git working tree the
// engine's actions mutate.
package sandbox

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the referenced environment no longer exists.
var ErrNotFound = errors.New("sandbox not found")

// ErrUnavailable indicates both resume and fresh creation failed; the
// caller treats this as fatal for the current step.
var ErrUnavailable = errors.New("sandbox unavailable")

// Handle identifies one running environment.
type Handle struct {
	ID    string
	Image string
}

// RunResult is the outcome of one command execution.
type RunResult struct {
	ExitCode int
	Output   string
}

// Provider allocates and drives execution environments. Implementations
// must be safe for concurrent RunCommand calls against the same handle.
type Provider interface {
	Create(ctx context.Context, image string) (Handle, error)
	Get(ctx context.Context, id string) (Handle, error)
	RunCommand(ctx context.Context, h Handle, cmd []string, cwd string, timeout time.Duration) (RunResult, error)
	Stop(ctx context.Context, h Handle) error
	Delete(ctx context.Context, h Handle) error
}
