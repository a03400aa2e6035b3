// Package schedule runs the background loops that feed and prune the job
// queue: a Scheduler that enqueues stored tasks when they come due, and a
// Retention sweeper that deletes terminal jobs past their retention window.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/codehive/swarmd/pkg/queue"
	"github.com/codehive/swarmd/pkg/store"
)

// defaultPollInterval is how often due tasks are checked when no interval
// is configured. Task granularity is minutes, so polling faster buys nothing.
const defaultPollInterval = time.Minute

// Scheduler polls the schedule store and enqueues due tasks as jobs.
// Jobs it creates carry the scheduled origin so refusal payloads name
// the right pipeline context.
type Scheduler struct {
	store    store.ScheduleStore
	jobs     *queue.Manager
	interval time.Duration
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler polling every interval (0 means the
// one-minute default).
func NewScheduler(st store.ScheduleStore, jobs *queue.Manager, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    st,
		jobs:     jobs,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the polling loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
	s.logger.Info("Scheduler started", "poll_interval", s.interval)
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.enqueueDue(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.enqueueDue(ctx)
		}
	}
}

// enqueueDue submits every due task as a job and advances its next run
// past now, so a long outage yields one catch-up run instead of a burst.
func (s *Scheduler) enqueueDue(ctx context.Context) {
	now := time.Now().UTC()
	due, err := s.store.ListDueTasks(ctx, now)
	if err != nil {
		s.logger.Error("Schedule poll failed", "error", err)
		return
	}

	for _, task := range due {
		job, err := s.jobs.EnqueueScheduled(ctx, task.Prompt, task.Mode, task.Name)
		if err != nil {
			var validErr *store.ValidationError
			if errors.As(err, &validErr) {
				// A task the queue rejects will be rejected every tick.
				task.Enabled = false
				if putErr := s.store.PutScheduledTask(ctx, task); putErr != nil {
					s.logger.Error("Failed to disable invalid task", "task", task.Name, "error", putErr)
				}
				s.logger.Error("Scheduled task disabled: enqueue rejected",
					"task", task.Name, "error", err)
				continue
			}
			// Transient failure: leave next_run_at alone and retry next tick.
			s.logger.Error("Scheduled enqueue failed", "task", task.Name, "error", err)
			continue
		}

		interval := time.Duration(task.IntervalMinutes) * time.Minute
		next := task.NextRunAt.Add(interval)
		for !next.After(now) {
			next = next.Add(interval)
		}
		task.NextRunAt = next
		if err := s.store.PutScheduledTask(ctx, task); err != nil {
			s.logger.Error("Failed to advance schedule", "task", task.Name, "error", err)
			continue
		}

		s.logger.Info("Scheduled job enqueued",
			"task", task.Name, "job_id", job.ID, "next_run_at", next)
	}
}
