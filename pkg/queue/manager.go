package queue

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/store"
)

// Manager owns job records. It never executes anything itself; workers pick
// queued jobs up from the shared store.
type Manager struct {
	store     store.JobStore
	canceller Canceller
	logger    *slog.Logger
}

// NewManager creates a job manager over the given store.
func NewManager(st store.JobStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: st, logger: logger}
}

// BindCanceller wires the worker pool's cancel registry. Call during wiring,
// before cancel requests can arrive; without it running jobs are settled by
// marking the record only.
func (m *Manager) BindCanceller(c Canceller) {
	m.canceller = c
}

// Enqueue validates and stores a new queued job. An empty mode is kept
// empty so the pipeline detects it from the prompt at execution time.
func (m *Manager) Enqueue(ctx context.Context, promptText string, mode models.PipelineMode, sessionID string) (*models.Job, error) {
	if strings.TrimSpace(promptText) == "" {
		return nil, store.NewValidationError("prompt", "prompt is required")
	}
	if mode != "" && !mode.IsValid() {
		return nil, store.NewValidationError("mode", "mode must be chat, swarm or project")
	}

	job := &models.Job{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Prompt:    promptText,
		Mode:      mode,
		Status:    models.JobStateQueued,
		CreatedAt: time.Now(),
	}
	if err := m.store.PutJob(ctx, job); err != nil {
		return nil, err
	}

	m.logger.Info("Job enqueued",
		"job_id", job.ID,
		"mode", string(job.Mode),
		"session_id", sessionID)
	return job, nil
}

// EnqueueScheduled stores a job on behalf of the scheduler. Such jobs carry
// the scheduled origin so refusal payloads name the right pipeline context.
func (m *Manager) EnqueueScheduled(ctx context.Context, promptText string, mode models.PipelineMode, taskName string) (*models.Job, error) {
	job, err := m.Enqueue(ctx, promptText, mode, "")
	if err != nil {
		return nil, err
	}
	job.Origin = models.PipelineContextScheduled
	if err := m.store.PutJob(ctx, job); err != nil {
		return nil, err
	}
	m.logger.Info("Scheduled job enqueued", "job_id", job.ID, "task", taskName)
	return job, nil
}

// Get returns one job by ID.
func (m *Manager) Get(ctx context.Context, id string) (*models.Job, error) {
	return m.store.GetJob(ctx, id)
}

// List returns all jobs, newest first.
func (m *Manager) List(ctx context.Context) ([]*models.Job, error) {
	jobs, err := m.store.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// Cancel stops a job. Queued jobs are marked cancelled directly. Running
// jobs are cancelled through the worker's context, and the owning worker
// persists the terminal state; when no worker owns the job (stale claim
// from a dead process) the record is settled here. Terminal jobs return
// ErrJobTerminal.
func (m *Manager) Cancel(ctx context.Context, id string) (*models.Job, error) {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, ErrJobTerminal
	}

	if job.Status == models.JobStateRunning && m.canceller != nil && m.canceller.CancelJob(id) {
		m.logger.Info("Job cancellation signalled", "job_id", id)
		return job, nil
	}

	now := time.Now()
	job.Status = models.JobStateCancelled
	job.CompletedAt = &now
	if err := m.store.PutJob(ctx, job); err != nil {
		return nil, err
	}
	m.logger.Info("Job cancelled", "job_id", id)
	return job, nil
}
