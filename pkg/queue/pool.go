package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codehive/swarmd/pkg/config"
	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/store"
)

// PoolHealth is the pool-level health snapshot.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	ActiveJobs    int            `json:"active_jobs"`
	QueueDepth    int            `json:"queue_depth"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
}

// WorkerPool runs a fixed set of workers over one job store and keeps the
// cancel registry for in-flight jobs. Concurrency is bounded by the worker
// count; there is no separate capacity check.
type WorkerPool struct {
	store    store.JobStore
	cfg      *config.QueueConfig
	executor Executor
	logger   *slog.Logger
	workers  []*Worker

	mu         sync.RWMutex
	activeJobs map[string]context.CancelFunc
	started    bool
}

// NewWorkerPool creates a pool. Workers spawn on Start.
func NewWorkerPool(st store.JobStore, cfg *config.QueueConfig, executor Executor, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		store:      st,
		cfg:        cfg,
		executor:   executor,
		logger:     logger,
		activeJobs: make(map[string]context.CancelFunc),
	}
}

// Start requeues jobs left running by a previous process, then spawns the
// workers. Calling Start on a started pool is a no-op.
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		p.logger.Warn("Worker pool already started")
		return nil
	}
	p.started = true
	p.mu.Unlock()

	reset, err := p.store.ResetRunning(ctx)
	if err != nil {
		return fmt.Errorf("failed to requeue interrupted jobs: %w", err)
	}
	if reset > 0 {
		p.logger.Warn("Requeued jobs interrupted by previous shutdown", "count", reset)
	}

	count := p.cfg.MaxConcurrentJobs
	if count < 1 {
		count = 1
	}
	p.logger.Info("Starting worker pool", "workers", count, "job_timeout", p.cfg.JobTimeout)
	for i := 0; i < count; i++ {
		w := NewWorker(fmt.Sprintf("worker-%d", i), p.store, p.cfg, p.executor, p, p.logger)
		p.workers = append(p.workers, w)
		w.Start(ctx)
	}
	return nil
}

// Stop shuts the pool down. Workers stop claiming immediately; in-flight
// jobs get GracefulShutdownTimeout to finish, after which their contexts
// are cancelled and the jobs settle as cancelled.
func (p *WorkerPool) Stop() {
	active := p.activeJobIDs()
	if len(active) > 0 {
		p.logger.Info("Waiting for active jobs to complete", "count", len(active), "job_ids", active)
	}

	for _, w := range p.workers {
		w.signalStop()
	}
	if !p.waitWorkers(p.cfg.GracefulShutdownTimeout) {
		remaining := p.activeJobIDs()
		p.logger.Warn("Shutdown grace period expired, cancelling jobs", "job_ids", remaining)
		for _, id := range remaining {
			p.CancelJob(id)
		}
		p.waitWorkers(0)
	}
	p.logger.Info("Worker pool stopped")
}

// waitWorkers waits for every worker loop to exit. A timeout of zero or
// less waits indefinitely. Reports whether all workers exited in time.
func (p *WorkerPool) waitWorkers(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		for _, w := range p.workers {
			w.wait()
		}
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// RegisterJob records the cancel function for a claimed job.
func (p *WorkerPool) RegisterJob(jobID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeJobs[jobID] = cancel
}

// UnregisterJob drops a job from the registry once processing ends.
func (p *WorkerPool) UnregisterJob(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeJobs, jobID)
}

// CancelJob cancels a running job's context. Reports whether a worker in
// this pool owned the job.
func (p *WorkerPool) CancelJob(jobID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cancel, ok := p.activeJobs[jobID]
	if !ok {
		return false
	}
	cancel()
	return true
}

// activeJobIDs snapshots the in-flight job IDs.
func (p *WorkerPool) activeJobIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeJobs))
	for id := range p.activeJobs {
		ids = append(ids, id)
	}
	return ids
}

// Health reports pool and queue state. A store failure marks the pool
// unhealthy.
func (p *WorkerPool) Health(ctx context.Context) PoolHealth {
	queueDepth := 0
	jobs, err := p.store.ListJobs(ctx)
	if err != nil {
		p.logger.Error("Queue depth query failed", "error", err)
	} else {
		for _, j := range jobs {
			if j.Status == models.JobStateQueued {
				queueDepth++
			}
		}
	}

	stats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, w := range p.workers {
		stats[i] = w.Health()
		if stats[i].Status == WorkerStatusWorking {
			activeWorkers++
		}
	}

	return PoolHealth{
		IsHealthy:     err == nil && len(p.workers) > 0,
		ActiveWorkers: activeWorkers,
		TotalWorkers:  len(p.workers),
		ActiveJobs:    len(p.activeJobIDs()),
		QueueDepth:    queueDepth,
		WorkerStats:   stats,
	}
}
