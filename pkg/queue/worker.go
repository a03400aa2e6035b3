package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/codehive/swarmd/pkg/config"
	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/store"
)

// WorkerStatus is a worker's current state.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth is a point-in-time snapshot of one worker.
type WorkerHealth struct {
	ID            string       `json:"id"`
	Status        WorkerStatus `json:"status"`
	CurrentJobID  string       `json:"current_job_id,omitempty"`
	JobsProcessed int          `json:"jobs_processed"`
	LastActivity  time.Time    `json:"last_activity"`
}

// Worker polls the store for queued jobs and executes them one at a time.
// Each claimed job runs under its own timeout context registered with the
// pool, so cancellation requests reach it mid-flight.
type Worker struct {
	id       string
	store    store.JobStore
	cfg      *config.QueueConfig
	executor Executor
	registry JobRegistry
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a queue worker. It does not start polling until Start.
func NewWorker(id string, st store.JobStore, cfg *config.QueueConfig, executor Executor, registry JobRegistry, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		id:           id,
		store:        st,
		cfg:          cfg,
		executor:     executor,
		registry:     registry,
		logger:       logger.With("worker_id", id),
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start launches the polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker and waits for its current job to finish. Safe to
// call multiple times.
func (w *Worker) Stop() {
	w.signalStop()
	w.wg.Wait()
}

// signalStop asks the loop to exit without waiting.
func (w *Worker) signalStop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// wait blocks until the loop has exited.
func (w *Worker) wait() {
	w.wg.Wait()
}

// Health returns the worker's current health snapshot.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        w.status,
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	w.logger.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			w.logger.Info("Worker shutting down")
			return
		case <-ctx.Done():
			w.logger.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					w.sleep(w.pollInterval())
					continue
				}
				w.logger.Error("Job processing error", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

// pollAndProcess claims the next queued job and drives it to a terminal
// state. store.ErrNotFound means the queue is empty.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	job, err := w.store.ClaimNextQueued(ctx)
	if err != nil {
		return err
	}
	log := w.logger.With("job_id", job.ID)
	log.Info("Job claimed", "mode", string(job.Mode))

	w.setStatus(WorkerStatusWorking, job.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	jobCtx, cancelJob := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancelJob()
	w.registry.RegisterJob(job.ID, cancelJob)
	defer w.registry.UnregisterJob(job.ID)

	emitter := &progressSink{store: w.store, jobID: job.ID, logger: w.logger}
	result, execErr := w.executor.Execute(jobCtx, job, emitter)

	status, errMsg := terminalState(jobCtx, result, execErr)
	// The job context may already be dead; the terminal write must not be.
	if err := w.finishJob(context.Background(), job.ID, status, result, errMsg); err != nil {
		log.Error("Terminal status write failed", "status", string(status), "error", err)
		return err
	}

	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()

	log.Info("Job finished", "status", string(status))
	return nil
}

// terminalState maps an execution outcome onto a job state. The job
// context is the authority on why a run ended early: its deadline folds
// into failed with an explanatory message, its cancellation into
// cancelled.
func terminalState(jobCtx context.Context, result *models.SwarmResult, execErr error) (models.JobState, string) {
	switch {
	case execErr == nil && result == nil:
		return models.JobStateFailed, "executor returned no result"
	case execErr == nil:
		return models.JobStateCompleted, ""
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		return models.JobStateFailed, fmt.Sprintf("job timed out: %v", execErr)
	case errors.Is(jobCtx.Err(), context.Canceled), errors.Is(execErr, context.Canceled):
		return models.JobStateCancelled, ""
	default:
		return models.JobStateFailed, execErr.Error()
	}
}

// finishJob persists the terminal state. A job already terminal is left
// alone: a racing direct cancellation keeps the first verdict.
func (w *Worker) finishJob(ctx context.Context, id string, status models.JobState, result *models.SwarmResult, errMsg string) error {
	job, err := w.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}

	now := time.Now()
	job.Status = status
	job.CompletedAt = &now
	job.Result = result
	job.Error = errMsg
	if status == models.JobStateCompleted {
		job.Progress = 100
		job.CurrentStage = "done"
	}
	return w.store.PutJob(ctx, job)
}

func (w *Worker) setStatus(status WorkerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}

// pollInterval returns the base interval offset by up to ±jitter, so a
// fleet of workers does not hit the store in lockstep.
func (w *Worker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// sleep waits for d unless the worker is stopped first.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}
