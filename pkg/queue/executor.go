package queue

import (
	"context"
	"log/slog"

	"github.com/codehive/swarmd/pkg/config"
	"github.com/codehive/swarmd/pkg/events"
	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/orchestrator"
	"github.com/codehive/swarmd/pkg/prompt"
)

// HistorySource threads prior exchanges into chat jobs and records the
// finished exchange afterwards. pkg/session implements it.
type HistorySource interface {
	History(ctx context.Context, sessionID string) ([]prompt.Exchange, error)
	Append(ctx context.Context, sessionID, promptText, answer string) error
}

// PipelineExecutor runs claimed jobs through the orchestrator. Settings are
// snapshotted per job via the source function, so config edits apply to the
// next claim, never a running one.
type PipelineExecutor struct {
	Orchestrator *orchestrator.Orchestrator
	Settings     func() config.Settings
	ProjectPath  string
	Sessions     HistorySource // nil disables history threading
	Logger       *slog.Logger
}

// Execute builds a pipeline for the job and runs it. Cancellation and
// timeouts arrive through ctx; the classified run error is returned
// alongside the partial result.
func (e *PipelineExecutor) Execute(ctx context.Context, job *models.Job, emitter events.Emitter) (*models.SwarmResult, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var history []prompt.Exchange
	if e.Sessions != nil && job.SessionID != "" {
		h, err := e.Sessions.History(ctx, job.SessionID)
		if err != nil {
			logger.Warn("History load failed, proceeding without",
				"session_id", job.SessionID, "error", err)
		} else {
			history = h
		}
	}

	p := e.Orchestrator.NewPipeline(orchestrator.Request{
		Prompt:          job.Prompt,
		Settings:        e.Settings(),
		ProjectPath:     e.ProjectPath,
		Mode:            job.Mode,
		JobID:           job.ID,
		History:         history,
		PipelineContext: job.Origin,
		Emitter:         emitter,
	})
	result, err := p.Run(ctx)
	if err != nil {
		return result, err
	}

	if e.Sessions != nil && job.SessionID != "" && p.Mode() == models.ModeChat {
		if aerr := e.Sessions.Append(ctx, job.SessionID, job.Prompt, result.FinalOutput); aerr != nil {
			logger.Warn("History append failed", "session_id", job.SessionID, "error", aerr)
		}
	}
	return result, nil
}
