// Package store defines the persistence contracts the engine runs on. The
// memory implementation backs tests and zero-config runs; the postgres
// implementation backs real deployments. Both return ErrNotFound for missing
// entities and hand out copies the caller may mutate freely.
package store

import (
	"context"
	"time"

	"github.com/codehive/swarmd/pkg/models"
)

// TicketStore persists tickets for the ticket manager.
type TicketStore interface {
	PutTicket(ctx context.Context, t *models.Ticket) error
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	ListTickets(ctx context.Context) ([]*models.Ticket, error)
}

// EvidenceStore persists evidence entries for the ledger.
type EvidenceStore interface {
	PutEvidence(ctx context.Context, e *models.EvidenceEntry) error
	GetEvidence(ctx context.Context, id string) (*models.EvidenceEntry, error)
	ListEvidence(ctx context.Context) ([]*models.EvidenceEntry, error)
}

// JobStore persists queued pipeline jobs.
type JobStore interface {
	PutJob(ctx context.Context, j *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context) ([]*models.Job, error)

	// ClaimNextQueued atomically picks the oldest queued job and marks it
	// running. ErrNotFound when nothing is queued.
	ClaimNextQueued(ctx context.Context) (*models.Job, error)

	// ResetRunning requeues every running job. Called once at boot so jobs
	// orphaned by a crash run again.
	ResetRunning(ctx context.Context) (int, error)

	// DeleteTerminalBefore removes terminal jobs older than cutoff and
	// returns how many were deleted.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SessionStore persists chat sessions.
type SessionStore interface {
	PutSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context) ([]*models.Session, error)
}

// ScheduleStore persists scheduled tasks.
type ScheduleStore interface {
	PutScheduledTask(ctx context.Context, t *models.ScheduledTask) error
	GetScheduledTask(ctx context.Context, id string) (*models.ScheduledTask, error)
	ListScheduledTasks(ctx context.Context) ([]*models.ScheduledTask, error)
	DeleteScheduledTask(ctx context.Context, id string) error

	// ListDueTasks returns enabled tasks whose nextRunAt is at or before now.
	ListDueTasks(ctx context.Context, now time.Time) ([]*models.ScheduledTask, error)
}

// Store is the full persistence surface main wires together.
type Store interface {
	TicketStore
	EvidenceStore
	JobStore
	SessionStore
	ScheduleStore
}
