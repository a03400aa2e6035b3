// Package agent spawns and supervises the worker processes of a stage: CLI
// subprocesses built from provider templates, hosted API calls, and the mock
// fallback. The Runner fans one agent out into chatsPerAgent concurrent
// chats and merges their outputs.
package agent

import (
	"context"
	"errors"
	"fmt"
)

// Executor runs one chat for an agent and returns its full output. onChunk
// receives incremental output as it is produced; it may be nil.
//
// Returns (output, nil) on success. Domain failures (non-zero exit, API
// error) return the partial output alongside the error so callers can still
// surface what the agent said before dying.
type Executor interface {
	RunChat(ctx context.Context, prompt string, onChunk func(chunk string)) (string, error)
}

// Exit codes of a process killed by signal: 128+SIGKILL and 128+SIGTERM.
// Both mean the process was torn down from outside; retrying would just
// race the same teardown again.
const (
	ExitKilled     = 137
	ExitTerminated = 143
)

// ExitError reports a CLI chat that exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("agent exited with status %d", e.Code)
}

// ExitCode extracts the process exit code from err when it wraps an
// ExitError.
func ExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

// permanent reports whether a chat failure must not be retried: deadline
// and cancellation (the run is over either way) and signal kills (something
// already tore the process down).
func permanent(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if code, ok := ExitCode(err); ok {
		return code == ExitKilled || code == ExitTerminated
	}
	return false
}
