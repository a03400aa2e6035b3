package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/codehive/swarmd/pkg/config"
)

// killGrace is how long a SIGTERM'd process gets to exit before SIGKILL.
const killGrace = 5 * time.Second

// CLIExecutor runs chats as shell subprocesses built from a provider command
// template. The prompt travels through a temp file substituted for {PROMPT};
// stdout and stderr are combined, in a pseudo-terminal when one can be
// allocated.
type CLIExecutor struct {
	// Template is the provider command template containing {PROMPT}.
	Template string

	// Dir is the working directory: the agent's worktree or the project path.
	Dir string

	// Env entries are appended over the inherited environment (API keys,
	// GITHUB_TOKEN).
	Env map[string]string

	logger *slog.Logger
}

// NewCLIExecutor creates a CLI executor for one provider template.
func NewCLIExecutor(template, dir string, env map[string]string) *CLIExecutor {
	return &CLIExecutor{Template: template, Dir: dir, Env: env, logger: slog.Default()}
}

// RunChat writes the prompt to a temp file, substitutes its path into the
// command template and supervises the subprocess to completion. On context
// expiry the process gets SIGTERM, then SIGKILL after the grace period. The
// prompt file is removed after the process exits.
func (e *CLIExecutor) RunChat(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	promptFile, err := os.CreateTemp("", "swarmd-prompt-*.txt")
	if err != nil {
		return "", fmt.Errorf("create prompt file: %w", err)
	}
	promptPath := promptFile.Name()
	defer os.Remove(promptPath)

	if _, err := promptFile.WriteString(prompt); err != nil {
		promptFile.Close()
		return "", fmt.Errorf("write prompt file: %w", err)
	}
	if err := promptFile.Close(); err != nil {
		return "", fmt.Errorf("close prompt file: %w", err)
	}

	command := strings.ReplaceAll(e.Template, config.PromptPlaceholder, promptPath)

	env := os.Environ()
	for k, v := range e.Env {
		env = append(env, k+"="+v)
	}
	build := func() *exec.Cmd {
		cmd := exec.Command("sh", "-c", command)
		cmd.Dir = e.Dir
		cmd.Env = env
		return cmd
	}

	var output strings.Builder
	lineReader, lineWriter := io.Pipe()
	var copyWG sync.WaitGroup

	cmd := build()
	ptmx, ptyErr := pty.Start(cmd)
	if ptyErr == nil {
		copyWG.Add(1)
		go func() {
			defer copyWG.Done()
			_, err := io.Copy(lineWriter, ptmx)
			// The PTY reports EIO when the child side closes; that is the
			// normal end of output, not a copy failure.
			var pathErr *os.PathError
			if errors.As(err, &pathErr) && pathErr.Err == syscall.EIO {
				err = nil
			}
			if err != nil {
				e.logger.Warn("PTY output copy failed", "error", err)
			}
		}()
	} else {
		e.logger.Debug("PTY unavailable, falling back to pipes", "error", ptyErr)
		cmd = build()
		cmd.Stdout = lineWriter
		cmd.Stderr = lineWriter
		cmd.Stdin = nil
		if err := cmd.Start(); err != nil {
			return "", fmt.Errorf("spawn agent process: %w", err)
		}
	}

	// Drain output line by line into the transcript and the chunk callback.
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(lineReader)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text() + "\n"
			output.WriteString(line)
			if onChunk != nil {
				onChunk(line)
			}
		}
	}()

	// Tear the process down when the context ends.
	waitDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = cmd.Process.Signal(syscall.SIGTERM)
			select {
			case <-waitDone:
			case <-time.After(killGrace):
				_ = cmd.Process.Kill()
			}
		case <-waitDone:
		}
	}()

	waitErr := cmd.Wait()
	close(waitDone)

	if ptyErr == nil {
		// Grandchildren keeping the PTY open can stall the copier past
		// process exit; cap the wait and cut the pipe.
		waitTimeout(&copyWG, time.Second)
		ptmx.Close()
	}
	lineWriter.Close()
	<-scanDone

	if waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return output.String(), fmt.Errorf("agent process killed: %w", ctxErr)
		}
		return output.String(), &ExitError{Code: exitStatus(waitErr)}
	}
	return output.String(), nil
}

// exitStatus extracts the exit code from a Wait error. Signal deaths map to
// 128+signal (SIGKILL 137, SIGTERM 143).
func exitStatus(waitErr error) int {
	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return 1
	}
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return 1
	}
	if ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ws.ExitStatus()
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
	}
}
