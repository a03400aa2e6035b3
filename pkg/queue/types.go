// Package queue turns stored jobs into pipeline runs. A Manager owns the
// job records (submission, lookup, cancellation) while a WorkerPool claims
// queued jobs and drives them to a terminal state under per-job timeouts.
// The two meet only through the store and the pool's cancel registry, so
// either side can be exercised alone in tests.
package queue

import (
	"context"
	"errors"

	"github.com/codehive/swarmd/pkg/events"
	"github.com/codehive/swarmd/pkg/models"
)

// ErrJobTerminal is returned when an operation requires a live job but the
// job already reached completed, failed or cancelled.
var ErrJobTerminal = errors.New("job is already in a terminal state")

// Executor runs one claimed job. Implementations must honor context
// cancellation and return a non-nil result whenever err is nil; a non-nil
// result may accompany an error to preserve partial output.
type Executor interface {
	Execute(ctx context.Context, job *models.Job, emitter events.Emitter) (*models.SwarmResult, error)
}

// JobRegistry tracks cancel functions for in-flight jobs so cancellation
// requests can reach the owning worker. The WorkerPool implements it.
type JobRegistry interface {
	RegisterJob(jobID string, cancel context.CancelFunc)
	UnregisterJob(jobID string)
}

// Canceller cancels a running job's context. Reports whether any worker
// owned the job; false means the caller must settle the record itself.
type Canceller interface {
	CancelJob(jobID string) bool
}
