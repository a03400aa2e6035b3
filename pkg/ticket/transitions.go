package ticket

import (
	"context"
	"fmt"
	"time"

	"github.com/codehive/swarmd/pkg/models"
)

// ExecuteTransition moves a ticket to a new status. The first rule matching
// (from, to) whose conditions, required fields, approval gates and blockers
// all pass fires; with no such rule the call fails with
// ErrTransitionNotAllowed. Approval history is appended on approved and
// rejected, SLA clocks start on in_progress, and terminal statuses ripple
// to dependents before the rule's auto-actions run.
func (m *Manager) ExecuteTransition(ctx context.Context, id string, to models.TicketStatus, actor Actor) (*models.Ticket, error) {
	t, rule, changed, err := m.transition(ctx, id, to, actor)
	if err != nil {
		return nil, err
	}
	m.notifyObservers(changed...)
	m.dispatchActions(ctx, rule, t)
	return t.Clone(), nil
}

func (m *Manager) transition(ctx context.Context, id string, to models.TicketStatus, actor Actor) (*models.Ticket, Rule, []*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.store.GetTicket(ctx, id)
	if err != nil {
		return nil, Rule{}, nil, err
	}

	rule, err := m.matchRule(ctx, t, to, actor)
	if err != nil {
		return nil, Rule{}, nil, err
	}

	now := time.Now()
	t.Status = to
	t.UpdatedAt = now
	switch to {
	case models.TicketStatusInProgress:
		if t.SLA != nil && t.SLA.StartedAt == nil {
			started := now
			t.SLA.StartedAt = &started
		}
	case models.TicketStatusApproved, models.TicketStatusRejected:
		t.ApprovalHistory = append(t.ApprovalHistory, models.ApprovalRecord{
			Action:     string(to),
			Timestamp:  now,
			ActorEmail: actor.Email,
		})
	}
	if err := m.store.PutTicket(ctx, t); err != nil {
		return nil, Rule{}, nil, fmt.Errorf("transition ticket %s: %w", id, err)
	}

	changed := []*models.Ticket{t}
	ripple, err := m.rippleTerminal(ctx, t)
	if err != nil {
		return nil, Rule{}, nil, err
	}
	changed = append(changed, ripple...)
	return t, rule, changed, nil
}

// matchRule returns the first rule that permits the move. Must hold m.mu.
func (m *Manager) matchRule(ctx context.Context, t *models.Ticket, to models.TicketStatus, actor Actor) (Rule, error) {
	var lastErr error
	for _, rule := range m.rules {
		if rule.From != t.Status || rule.To != to {
			continue
		}
		ok, err := m.ruleApplies(ctx, rule, t, actor)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return rule, nil
		}
	}
	if lastErr != nil {
		return Rule{}, lastErr
	}
	return Rule{}, fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, t.Status, to)
}

func (m *Manager) ruleApplies(ctx context.Context, rule Rule, t *models.Ticket, actor Actor) (bool, error) {
	for _, field := range rule.RequiredFields {
		if !fieldPresent(t, field) {
			return false, nil
		}
	}
	if rule.RequiredApproval && !t.Approvals.Satisfied() {
		return false, nil
	}
	if len(rule.BlockedBy) > 0 {
		blocked, err := m.anyDependencyIn(ctx, t, rule.BlockedBy)
		if err != nil {
			return false, err
		}
		if blocked {
			return false, nil
		}
	}
	for _, cond := range rule.Conditions {
		ok, err := m.evalCondition(ctx, cond, t, actor)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (m *Manager) evalCondition(ctx context.Context, cond Condition, t *models.Ticket, actor Actor) (bool, error) {
	switch cond.Type {
	case CondHasRole:
		return actor.Role.AtLeast(cond.Role), nil
	case CondAllDependenciesComplete:
		return m.dependenciesComplete(ctx, t)
	case CondAllSubtasksComplete:
		return m.subtasksDone(ctx, t.ID)
	case CondHasDesignPack:
		return m.designPacks[t.ID], nil
	case CondHasDevPack:
		return m.devPacks[t.ID], nil
	case CondPassesTests:
		passed, recorded := m.testResults[t.ID]
		return !recorded || passed, nil
	case CondHasCodeReview:
		return m.codeReviews[t.ID], nil
	case CondCustom:
		if cond.Fn == nil {
			return false, nil
		}
		return cond.Fn(t.Clone(), actor), nil
	default:
		return false, fmt.Errorf("unknown condition type %q", cond.Type)
	}
}

// dependenciesComplete reports whether every dependency is done or
// approved. A missing dependency counts as incomplete.
func (m *Manager) dependenciesComplete(ctx context.Context, t *models.Ticket) (bool, error) {
	for _, dep := range t.Dependencies {
		d, err := m.store.GetTicket(ctx, dep)
		if err != nil {
			return false, nil
		}
		if !d.Status.IsComplete() {
			return false, nil
		}
	}
	return true, nil
}

// subtasksDone reports whether every child ticket is done. Approved is not
// enough for children; they must have finished.
func (m *Manager) subtasksDone(ctx context.Context, id string) (bool, error) {
	all, err := m.store.ListTickets(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range all {
		if t.ParentID == id && t.Status != models.TicketStatusDone {
			return false, nil
		}
	}
	return true, nil
}

func (m *Manager) anyDependencyIn(ctx context.Context, t *models.Ticket, statuses []models.TicketStatus) (bool, error) {
	for _, dep := range t.Dependencies {
		d, err := m.store.GetTicket(ctx, dep)
		if err != nil {
			continue
		}
		for _, s := range statuses {
			if d.Status == s {
				return true, nil
			}
		}
	}
	return false, nil
}

// rippleTerminal applies the engine moves a terminal status causes on
// dependent tickets. On done, dependents whose dependencies are all
// complete move from backlog into in_progress. On rejected, dependents
// still in backlog or in_progress reset to backlog. Must hold m.mu.
func (m *Manager) rippleTerminal(ctx context.Context, t *models.Ticket) ([]*models.Ticket, error) {
	if t.Status != models.TicketStatusDone && t.Status != models.TicketStatusRejected {
		return nil, nil
	}
	all, err := m.store.ListTickets(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var changed []*models.Ticket
	for _, dep := range all {
		if !dependsOn(dep, t.ID) {
			continue
		}
		switch t.Status {
		case models.TicketStatusDone:
			if dep.Status != models.TicketStatusBacklog {
				continue
			}
			ready, err := m.dependenciesComplete(ctx, dep)
			if err != nil || !ready {
				continue
			}
			dep.Status = models.TicketStatusInProgress
			if dep.SLA != nil && dep.SLA.StartedAt == nil {
				started := now
				dep.SLA.StartedAt = &started
			}
		case models.TicketStatusRejected:
			if dep.Status != models.TicketStatusBacklog && dep.Status != models.TicketStatusInProgress {
				continue
			}
			dep.Status = models.TicketStatusBacklog
		}
		dep.UpdatedAt = now
		if err := m.store.PutTicket(ctx, dep); err != nil {
			return changed, fmt.Errorf("ripple to dependent %s: %w", dep.ID, err)
		}
		changed = append(changed, dep)
	}
	return changed, nil
}

func dependsOn(t *models.Ticket, id string) bool {
	for _, dep := range t.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// fieldPresent checks a required field by its wire name.
func fieldPresent(t *models.Ticket, field string) bool {
	switch field {
	case "title":
		return t.Title != ""
	case "description":
		return t.Description != ""
	case "acceptance_criteria":
		return len(t.AcceptanceCriteria) > 0
	case "complexity":
		return t.Complexity != ""
	case "assigned_role":
		return t.AssignedRole != ""
	case "level":
		return t.Level != ""
	case "parent_id":
		return t.ParentID != ""
	case "sla":
		return t.SLA != nil
	default:
		return false
	}
}
