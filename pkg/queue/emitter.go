package queue

import (
	"context"
	"log/slog"

	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/store"
)

// progressSink persists pipeline progress onto the job record so pollers
// see live progress and the current stage. Agent-level events are dropped;
// they belong to streaming observers, not the job row. Writes use a fresh
// context because progress can arrive while the job context is tearing
// down.
type progressSink struct {
	store  store.JobStore
	jobID  string
	logger *slog.Logger
}

func (s *progressSink) AgentOutput(string, string)                   {}
func (s *progressSink) AgentStatus(string, models.AgentStatus, *int) {}
func (s *progressSink) MCPToolResult(string, string, string, string) {}

func (s *progressSink) JobProgress(jobID string, progress int, stage string) {
	if jobID == "" {
		jobID = s.jobID
	}
	ctx := context.Background()
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		s.logger.Warn("Progress update skipped, job lookup failed", "job_id", jobID, "error", err)
		return
	}
	if job.Status.IsTerminal() {
		return
	}
	job.Progress = progress
	job.CurrentStage = stage
	if err := s.store.PutJob(ctx, job); err != nil {
		s.logger.Warn("Progress update failed", "job_id", jobID, "error", err)
	}
}
