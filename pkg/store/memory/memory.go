// Package memory is the in-memory store implementation. It backs tests and
// zero-config runs where no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/store"
)

// Store keeps everything in mutex-guarded maps. All reads and writes deep
// copy, so callers never share state with the store or each other.
type Store struct {
	mu        sync.RWMutex
	tickets   map[string]*models.Ticket
	evidence  map[string]*models.EvidenceEntry
	jobs      map[string]*models.Job
	sessions  map[string]*models.Session
	schedules map[string]*models.ScheduledTask
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		tickets:   make(map[string]*models.Ticket),
		evidence:  make(map[string]*models.EvidenceEntry),
		jobs:      make(map[string]*models.Job),
		sessions:  make(map[string]*models.Session),
		schedules: make(map[string]*models.ScheduledTask),
	}
}

func (s *Store) PutTicket(_ context.Context, t *models.Ticket) error {
	if t == nil || t.ID == "" {
		return store.NewValidationError("id", "ticket id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t.Clone()
	return nil
}

func (s *Store) GetTicket(_ context.Context, id string) (*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *Store) ListTickets(_ context.Context) ([]*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) PutEvidence(_ context.Context, e *models.EvidenceEntry) error {
	if e == nil || e.ID == "" {
		return store.NewValidationError("id", "evidence id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evidence[e.ID] = e.Clone()
	return nil
}

func (s *Store) GetEvidence(_ context.Context, id string) (*models.EvidenceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.evidence[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return e.Clone(), nil
}

func (s *Store) ListEvidence(_ context.Context) ([]*models.EvidenceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.EvidenceEntry, 0, len(s.evidence))
	for _, e := range s.evidence {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *Store) PutJob(_ context.Context, j *models.Job) error {
	if j == nil || j.ID == "" {
		return store.NewValidationError("id", "job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j.Clone()
	return nil
}

func (s *Store) GetJob(_ context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return j.Clone(), nil
}

func (s *Store) ListJobs(_ context.Context) ([]*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) ClaimNextQueued(_ context.Context) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *models.Job
	for _, j := range s.jobs {
		if j.Status != models.JobStateQueued {
			continue
		}
		if oldest == nil ||
			j.CreatedAt.Before(oldest.CreatedAt) ||
			(j.CreatedAt.Equal(oldest.CreatedAt) && j.ID < oldest.ID) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, store.ErrNotFound
	}

	now := time.Now()
	oldest.Status = models.JobStateRunning
	oldest.StartedAt = &now
	return oldest.Clone(), nil
}

func (s *Store) ResetRunning(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reset := 0
	for _, j := range s.jobs {
		if j.Status == models.JobStateRunning {
			j.Status = models.JobStateQueued
			j.StartedAt = nil
			reset++
		}
	}
	return reset, nil
}

func (s *Store) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, j := range s.jobs {
		if !j.Status.IsTerminal() {
			continue
		}
		finished := j.CreatedAt
		if j.CompletedAt != nil {
			finished = *j.CompletedAt
		}
		if finished.Before(cutoff) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) PutSession(_ context.Context, sess *models.Session) error {
	if sess == nil || sess.ID == "" {
		return store.NewValidationError("id", "session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) ListSessions(_ context.Context) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		cp := *sess
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) PutScheduledTask(_ context.Context, t *models.ScheduledTask) error {
	if t == nil || t.ID == "" {
		return store.NewValidationError("id", "task id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.schedules[t.ID] = &cp
	return nil
}

func (s *Store) GetScheduledTask(_ context.Context, id string) (*models.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.schedules[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) ListScheduledTasks(_ context.Context) ([]*models.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ScheduledTask, 0, len(s.schedules))
	for _, t := range s.schedules {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextRunAt.Equal(out[j].NextRunAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].NextRunAt.Before(out[j].NextRunAt)
	})
	return out, nil
}

func (s *Store) DeleteScheduledTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.schedules, id)
	return nil
}

func (s *Store) ListDueTasks(_ context.Context, now time.Time) ([]*models.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*models.ScheduledTask
	for _, t := range s.schedules {
		if t.Enabled && !t.NextRunAt.After(now) {
			cp := *t
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].NextRunAt.Equal(due[j].NextRunAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].NextRunAt.Before(due[j].NextRunAt)
	})
	return due, nil
}
