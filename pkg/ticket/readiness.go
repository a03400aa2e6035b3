package ticket

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/codehive/swarmd/pkg/models"
)

// GetReadyTickets returns every ticket ready to be worked on: backlog
// status, all dependencies complete, approval gates satisfied and SLA not
// breached. SLA enforcement runs first, so a breached ticket is rejected
// (and escalated when the policy says so) instead of appearing ready.
// Results are ordered oldest first.
func (m *Manager) GetReadyTickets(ctx context.Context) ([]*models.Ticket, error) {
	ready, rejected, escalations, err := m.readyTickets(ctx)
	if err != nil {
		return nil, err
	}
	m.notifyObservers(rejected...)
	for _, seed := range escalations {
		if _, err := m.Create(ctx, seed); err != nil {
			slog.Warn("SLA escalation ticket creation failed",
				"original_ticket_id", seed.OriginalTicketID,
				"error", err)
		}
	}
	return ready, nil
}

// GetNextTicketForAgent returns the oldest ready ticket assigned to the
// role. Subtask and subatomic tickets additionally require their parent to
// be done. ErrNoTicketReady when nothing qualifies.
func (m *Manager) GetNextTicketForAgent(ctx context.Context, role models.AgentRole) (*models.Ticket, error) {
	ready, err := m.GetReadyTickets(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range ready {
		if t.AssignedRole != role {
			continue
		}
		if t.Level == models.LevelSubtask || t.Level == models.LevelSubatomic {
			parent, err := m.store.GetTicket(ctx, t.ParentID)
			if err != nil || parent.Status != models.TicketStatusDone {
				continue
			}
		}
		return t, nil
	}
	return nil, ErrNoTicketReady
}

func (m *Manager) readyTickets(ctx context.Context) (ready, rejected []*models.Ticket, escalations []CreateRequest, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.store.ListTickets(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	now := time.Now()

	// Lazy SLA pass. Breached tickets move to rejected before readiness
	// is computed, and their dependents reset like any other rejection.
	for _, t := range all {
		if t.Status.IsComplete() || t.Status == models.TicketStatusRejected {
			continue
		}
		if t.SLA.Risk(now) != models.SLARiskBreached {
			continue
		}
		t.Status = models.TicketStatusRejected
		if t.RetryCount < m.maxRetries {
			t.RetryCount++
		}
		t.ApprovalHistory = append(t.ApprovalHistory, models.ApprovalRecord{
			Action:     string(models.TicketStatusRejected),
			Timestamp:  now,
			ActorEmail: SystemActor.Email,
		})
		t.UpdatedAt = now
		if err := m.store.PutTicket(ctx, t); err != nil {
			return nil, nil, nil, fmt.Errorf("reject breached ticket %s: %w", t.ID, err)
		}
		rejected = append(rejected, t)
		ripple, err := m.rippleTerminal(ctx, t)
		if err != nil {
			return nil, nil, nil, err
		}
		rejected = append(rejected, ripple...)
		if m.escalate {
			escalations = append(escalations, escalationRequest(t))
		}
		slog.Info("Ticket SLA breached",
			"ticket_id", t.ID,
			"retry_count", t.RetryCount,
			"escalate", m.escalate)
	}

	// Re-read so ripple moves are reflected.
	all, err = m.store.ListTickets(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	for _, t := range all {
		ok, err := m.isReady(ctx, t, now)
		if err != nil {
			return nil, nil, nil, err
		}
		if ok {
			ready = append(ready, t)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].CreatedAt.Equal(ready[j].CreatedAt) {
			return ready[i].ID < ready[j].ID
		}
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})
	return ready, rejected, escalations, nil
}

func (m *Manager) isReady(ctx context.Context, t *models.Ticket, now time.Time) (bool, error) {
	if t.Status != models.TicketStatusBacklog {
		return false, nil
	}
	if t.SLA.Risk(now) == models.SLARiskBreached {
		return false, nil
	}
	if !t.Approvals.Satisfied() {
		return false, nil
	}
	return m.dependenciesComplete(ctx, t)
}

// escalationRequest seeds the follow-up ticket for an SLA rejection: same
// role and position in the hierarchy, depending on the original so it only
// becomes ready once the original is resolved.
func escalationRequest(t *models.Ticket) CreateRequest {
	return CreateRequest{
		ProjectID:        t.ProjectID,
		Title:            "Escalation: " + t.Title,
		Description:      fmt.Sprintf("SLA breached on ticket %s (retry %d). %s", t.ID, t.RetryCount, t.Description),
		AssignedRole:     t.AssignedRole,
		Level:            t.Level,
		ParentID:         t.ParentID,
		Dependencies:     []string{t.ID},
		Type:             models.TicketTypeEscalation,
		OriginalTicketID: t.ID,
	}
}
