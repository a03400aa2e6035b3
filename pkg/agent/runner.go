package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/codehive/swarmd/pkg/events"
	"github.com/codehive/swarmd/pkg/models"
)

// Runner supervises one agent: it fans the prompt out into chatsPerAgent
// concurrent chats, retries transient failures with a fixed delay, merges
// the outputs in chat order and reports lifecycle through the emitter.
type Runner struct {
	// MaxRetries is how many extra attempts a failed chat gets. Timeouts,
	// cancellation and signal kills (137/143) are never retried.
	MaxRetries int

	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration
}

// Request describes one agent run.
type Request struct {
	AgentID  string
	Executor Executor
	Prompt   string
	Chats    int
	Emitter  events.Emitter
}

// Outcome is the terminal state of one agent run. Err is nil exactly when
// Status is completed.
type Outcome struct {
	Output   string
	Status   models.AgentStatus
	ExitCode *int
	Err      error
}

type chatResult struct {
	index  int
	output string
	err    error
}

// Run executes the agent to completion. It always returns an Outcome: chat
// failures, timeouts and cancellation land in Status/Err, never panic the
// stage.
func (r *Runner) Run(ctx context.Context, req Request) Outcome {
	events.AgentStatus(req.Emitter, req.AgentID, models.AgentStatusSpawning, nil)

	chats := req.Chats
	if chats < 1 {
		chats = 1
	}

	results := make(chan chatResult, chats)
	for k := 0; k < chats; k++ {
		go func(k int) {
			out, err := r.runChat(ctx, req)
			results <- chatResult{index: k, output: out, err: err}
		}(k)
	}

	events.AgentStatus(req.Emitter, req.AgentID, models.AgentStatusRunning, nil)

	collected := make([]chatResult, 0, chats)
	for len(collected) < chats {
		collected = append(collected, <-results)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	outcome := r.classify(collected, chats)
	events.AgentStatus(req.Emitter, req.AgentID, outcome.Status, outcome.ExitCode)
	return outcome
}

// runChat executes one chat with the retry policy: constant delay, capped
// attempts, permanent on timeout/cancel/signal-kill. Cancellation clears
// any pending retry wait.
func (r *Runner) runChat(ctx context.Context, req Request) (string, error) {
	var out string
	op := func() error {
		var err error
		out, err = req.Executor.RunChat(ctx, req.Prompt, func(chunk string) {
			events.AgentOutput(req.Emitter, req.AgentID, chunk)
		})
		if err == nil {
			return nil
		}
		if permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.RetryDelay), uint64(r.MaxRetries)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return out, err
	}
	return out, nil
}

// classify merges chat outputs in index order and derives the terminal
// status from the first failed chat.
func (r *Runner) classify(collected []chatResult, chats int) Outcome {
	var merged strings.Builder
	var firstErr error
	for _, res := range collected {
		if chats > 1 {
			if merged.Len() > 0 {
				merged.WriteString("\n")
			}
			fmt.Fprintf(&merged, "--- chat %d/%d ---\n", res.index+1, chats)
		}
		merged.WriteString(res.output)
		if firstErr == nil && res.err != nil {
			firstErr = res.err
		}
	}

	out := Outcome{Output: merged.String()}
	switch {
	case firstErr == nil:
		zero := 0
		out.Status = models.AgentStatusCompleted
		out.ExitCode = &zero
	case errors.Is(firstErr, context.Canceled):
		out.Status = models.AgentStatusCancelled
		out.Err = firstErr
	default:
		out.Status = models.AgentStatusFailed
		out.Err = firstErr
		if code, ok := ExitCode(firstErr); ok {
			out.ExitCode = &code
		}
	}
	return out
}
