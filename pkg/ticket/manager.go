// Package ticket implements the hierarchical backlog: ticket creation and
// mutation, the table-driven status transition engine, dependency-gated
// readiness and lazy SLA enforcement. The Manager is the sole mutator of
// ticket state; everything it hands out — return values and observer
// callbacks alike — is a deep copy.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/store"
)

const defaultMaxRetries = 3

// Options configures a Manager. The zero value gives the default rule set,
// a retry cap of 3 and no SLA escalation.
type Options struct {
	// Rules is the transition table. Nil means DefaultRules().
	Rules []Rule

	// Effects are the auto-action collaborators.
	Effects SideEffects

	// MaxRetries caps a ticket's retryCount on SLA rejections.
	MaxRetries int

	// EscalateOnSLABreach creates an escalation ticket whenever SLA
	// enforcement rejects one.
	EscalateOnSLABreach bool
}

// Manager owns all ticket state. One mutex serializes mutations; reads of
// the packs and review registries share it.
type Manager struct {
	store      store.TicketStore
	rules      []Rule
	effects    SideEffects
	maxRetries int
	escalate   bool

	mu          sync.Mutex
	designPacks map[string]bool
	devPacks    map[string]bool
	testResults map[string]bool
	codeReviews map[string]bool
	observers   []func(*models.Ticket)
}

// NewManager creates a Manager over the given store. The manager itself
// backs the Assigner, Subtasks and Fields effects when none are supplied.
func NewManager(st store.TicketStore, opts Options) *Manager {
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	m := &Manager{
		store:       st,
		rules:       rules,
		effects:     opts.Effects,
		maxRetries:  maxRetries,
		escalate:    opts.EscalateOnSLABreach,
		designPacks: make(map[string]bool),
		devPacks:    make(map[string]bool),
		testResults: make(map[string]bool),
		codeReviews: make(map[string]bool),
	}
	if m.effects.Assigner == nil {
		m.effects.Assigner = m
	}
	if m.effects.Subtasks == nil {
		m.effects.Subtasks = m
	}
	if m.effects.Fields == nil {
		m.effects.Fields = m
	}
	return m
}

// OnUpdate registers an observer called with a deep copy of every ticket
// the manager changes. Callbacks run outside the manager lock; it is safe
// for them to call back into the manager.
func (m *Manager) OnUpdate(fn func(*models.Ticket)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// CreateRequest carries everything Create needs. Status always starts at
// backlog; Type defaults to task.
type CreateRequest struct {
	ProjectID          string
	Title              string
	Description        string
	AcceptanceCriteria []string
	Complexity         models.Complexity
	AssignedRole       models.AgentRole
	Level              models.TicketLevel
	ParentID           string
	Dependencies       []string
	RequiredGates      []string
	SLA                *models.SLA
	Type               models.TicketType
	OriginalTicketID   string
}

// Create validates the request against the hierarchy rules and persists a
// new backlog ticket.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*models.Ticket, error) {
	t, err := m.create(ctx, req)
	if err != nil {
		return nil, err
	}
	m.notifyObservers(t)
	return t.Clone(), nil
}

func (m *Manager) create(ctx context.Context, req CreateRequest) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.Title == "" {
		return nil, store.NewValidationError("title", "required")
	}
	if req.Complexity != "" && !req.Complexity.IsValid() {
		return nil, store.NewValidationError("complexity", "invalid value")
	}
	if req.Level != "" && !req.Level.IsValid() {
		return nil, store.NewValidationError("level", "invalid value")
	}
	if req.Type != "" && !req.Type.IsValid() {
		return nil, store.NewValidationError("type", "invalid value")
	}
	if err := m.validateHierarchy(ctx, req.Level, req.ParentID, ""); err != nil {
		return nil, err
	}
	if err := m.validateDependencies(ctx, req.Dependencies, ""); err != nil {
		return nil, err
	}

	typ := req.Type
	if typ == "" {
		typ = models.TicketTypeTask
	}
	now := time.Now()
	t := &models.Ticket{
		ID:                 uuid.NewString(),
		ProjectID:          req.ProjectID,
		Title:              req.Title,
		Description:        req.Description,
		AcceptanceCriteria: append([]string(nil), req.AcceptanceCriteria...),
		Complexity:         req.Complexity,
		Status:             models.TicketStatusBacklog,
		AssignedRole:       req.AssignedRole,
		Level:              req.Level,
		ParentID:           req.ParentID,
		Dependencies:       append([]string(nil), req.Dependencies...),
		Approvals:          models.Approvals{RequiredGates: append([]string(nil), req.RequiredGates...)},
		Type:               typ,
		OriginalTicketID:   req.OriginalTicketID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.SLA != nil {
		sla := *req.SLA
		if req.SLA.StartedAt != nil {
			st := *req.SLA.StartedAt
			sla.StartedAt = &st
		}
		t.SLA = &sla
	}
	if err := m.store.PutTicket(ctx, t); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	return t, nil
}

// Get returns a copy of one ticket.
func (m *Manager) Get(ctx context.Context, id string) (*models.Ticket, error) {
	return m.store.GetTicket(ctx, id)
}

// List returns copies of every ticket.
func (m *Manager) List(ctx context.Context) ([]*models.Ticket, error) {
	return m.store.ListTickets(ctx)
}

// Update applies mutate to a copy of the ticket and persists the result.
// Status changes are rejected — they go through ExecuteTransition — and the
// engine-owned fields (id, timestamps, retry count, approval history,
// evidence links) are preserved regardless of what mutate does. Hierarchy
// and dependency changes are re-validated, so moves cannot introduce
// cycles.
func (m *Manager) Update(ctx context.Context, id string, mutate func(*models.Ticket)) (*models.Ticket, error) {
	t, err := m.update(ctx, id, mutate)
	if err != nil {
		return nil, err
	}
	m.notifyObservers(t)
	return t.Clone(), nil
}

func (m *Manager) update(ctx context.Context, id string, mutate func(*models.Ticket)) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, err := m.store.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	next := prev.Clone()
	mutate(next)

	if next.Status != prev.Status {
		return nil, ErrStatusViaUpdate
	}
	if next.Title == "" {
		return nil, store.NewValidationError("title", "required")
	}
	if next.Level != prev.Level || next.ParentID != prev.ParentID {
		if next.Level != "" && !next.Level.IsValid() {
			return nil, store.NewValidationError("level", "invalid value")
		}
		if err := m.validateHierarchy(ctx, next.Level, next.ParentID, id); err != nil {
			return nil, err
		}
	}
	if err := m.validateDependencies(ctx, next.Dependencies, id); err != nil {
		return nil, err
	}

	next.ID = prev.ID
	next.CreatedAt = prev.CreatedAt
	next.RetryCount = prev.RetryCount
	next.Type = prev.Type
	next.OriginalTicketID = prev.OriginalTicketID
	next.ApprovalHistory = append([]models.ApprovalRecord(nil), prev.ApprovalHistory...)
	next.EvidenceIDs = append([]string(nil), prev.EvidenceIDs...)
	next.UpdatedAt = time.Now()

	if err := m.store.PutTicket(ctx, next); err != nil {
		return nil, fmt.Errorf("update ticket %s: %w", id, err)
	}
	return next, nil
}

// AttachEvidence links an evidence entry onto a ticket. This is the ticket
// half of the ledger's bidirectional link; evidence.Ledger calls it through
// the TicketLinker interface.
func (m *Manager) AttachEvidence(ctx context.Context, ticketID, evidenceID string) error {
	m.mu.Lock()
	t, err := m.store.GetTicket(ctx, ticketID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	for _, id := range t.EvidenceIDs {
		if id == evidenceID {
			m.mu.Unlock()
			return nil
		}
	}
	t.EvidenceIDs = append(t.EvidenceIDs, evidenceID)
	t.UpdatedAt = time.Now()
	if err := m.store.PutTicket(ctx, t); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("attach evidence to ticket %s: %w", ticketID, err)
	}
	m.mu.Unlock()
	m.notifyObservers(t)
	return nil
}

// RegisterDesignPack marks a design pack as present for a ticket.
func (m *Manager) RegisterDesignPack(ticketID string) {
	m.mu.Lock()
	m.designPacks[ticketID] = true
	m.mu.Unlock()
}

// RegisterDevPack marks a dev pack as present for a ticket.
func (m *Manager) RegisterDevPack(ticketID string) {
	m.mu.Lock()
	m.devPacks[ticketID] = true
	m.mu.Unlock()
}

// RecordTestResult stores the latest test outcome for a ticket. The
// passesTests condition reads the last value recorded and defaults to true
// when none is.
func (m *Manager) RecordTestResult(ticketID string, passed bool) {
	m.mu.Lock()
	m.testResults[ticketID] = passed
	m.mu.Unlock()
}

// RecordCodeReview stores the latest review outcome for a ticket. The
// hasCodeReview condition requires an approved review on record.
func (m *Manager) RecordCodeReview(ticketID string, approved bool) {
	m.mu.Lock()
	m.codeReviews[ticketID] = approved
	m.mu.Unlock()
}

// AssignRole is the built-in Assigner.
func (m *Manager) AssignRole(ctx context.Context, ticketID string, role models.AgentRole) error {
	_, err := m.Update(ctx, ticketID, func(t *models.Ticket) {
		t.AssignedRole = role
	})
	return err
}

// CreateSubtask is the built-in SubtaskCreator. The child is created one
// level below the parent.
func (m *Manager) CreateSubtask(ctx context.Context, parent *models.Ticket, tmpl SubtaskTemplate) (string, error) {
	level, ok := childLevel(parent.Level)
	if !ok {
		return "", fmt.Errorf("%w: %s ticket cannot have children", ErrHierarchyViolation, parent.Level)
	}
	t, err := m.Create(ctx, CreateRequest{
		ProjectID:    parent.ProjectID,
		Title:        tmpl.Title,
		Description:  tmpl.Description,
		AssignedRole: tmpl.AssignedRole,
		Level:        level,
		ParentID:     parent.ID,
	})
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

// UpdateField is the built-in FieldUpdater. Only plain string fields are
// settable this way.
func (m *Manager) UpdateField(ctx context.Context, ticketID, field, value string) error {
	var apply func(*models.Ticket)
	switch field {
	case "title":
		apply = func(t *models.Ticket) { t.Title = value }
	case "description":
		apply = func(t *models.Ticket) { t.Description = value }
	case "assigned_role":
		apply = func(t *models.Ticket) { t.AssignedRole = models.AgentRole(value) }
	case "complexity":
		apply = func(t *models.Ticket) { t.Complexity = models.Complexity(value) }
	default:
		return store.NewValidationError("field", "not settable: "+field)
	}
	_, err := m.Update(ctx, ticketID, apply)
	return err
}

// validateHierarchy checks level/parent pairing. selfID is non-empty on
// moves so the cycle walk can detect the ticket re-entering its own chain.
func (m *Manager) validateHierarchy(ctx context.Context, level models.TicketLevel, parentID, selfID string) error {
	if level == "" {
		if parentID != "" {
			return fmt.Errorf("%w: parent set on a ticket without a level", ErrHierarchyViolation)
		}
		return nil
	}
	want, hasParent := level.ParentLevel()
	if !hasParent {
		if parentID != "" {
			return fmt.Errorf("%w: %s tickets are roots", ErrHierarchyViolation, level)
		}
		return nil
	}
	if parentID == "" {
		return fmt.Errorf("%w: %s ticket requires a %s parent", ErrHierarchyViolation, level, want)
	}
	parent, err := m.store.GetTicket(ctx, parentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: parent %s not found", ErrHierarchyViolation, parentID)
		}
		return err
	}
	if parent.Level != want {
		return fmt.Errorf("%w: %s ticket requires a %s parent, parent %s is %s",
			ErrHierarchyViolation, level, want, parentID, parent.Level)
	}
	return m.checkParentChain(ctx, selfID, parentID)
}

// checkParentChain walks up from parentID and fails when the chain loops or
// re-enters selfID.
func (m *Manager) checkParentChain(ctx context.Context, selfID, parentID string) error {
	seen := make(map[string]bool)
	if selfID != "" {
		seen[selfID] = true
	}
	cur := parentID
	for cur != "" {
		if seen[cur] {
			return ErrDependencyCycle
		}
		seen[cur] = true
		p, err := m.store.GetTicket(ctx, cur)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		cur = p.ParentID
	}
	return nil
}

func (m *Manager) validateDependencies(ctx context.Context, deps []string, selfID string) error {
	for _, dep := range deps {
		if dep == selfID && selfID != "" {
			return store.NewValidationError("dependencies", "ticket cannot depend on itself")
		}
		if _, err := m.store.GetTicket(ctx, dep); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.NewValidationError("dependencies", "unknown ticket "+dep)
			}
			return err
		}
	}
	return nil
}

func childLevel(l models.TicketLevel) (models.TicketLevel, bool) {
	switch l {
	case models.LevelFeature:
		return models.LevelEpic, true
	case models.LevelEpic:
		return models.LevelStory, true
	case models.LevelStory:
		return models.LevelTask, true
	case models.LevelTask:
		return models.LevelSubtask, true
	case models.LevelSubtask:
		return models.LevelSubatomic, true
	default:
		return "", false
	}
}

// notifyObservers hands a deep copy of each changed ticket to every
// registered observer. Must be called without the manager lock held.
func (m *Manager) notifyObservers(tickets ...*models.Ticket) {
	m.mu.Lock()
	observers := make([]func(*models.Ticket), len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()
	for _, t := range tickets {
		if t == nil {
			continue
		}
		for _, fn := range observers {
			fn(t.Clone())
		}
	}
}

// dispatchActions runs a fired rule's auto-actions. Each failure is logged
// and the rest still run; the transition itself is already committed.
func (m *Manager) dispatchActions(ctx context.Context, rule Rule, t *models.Ticket) {
	for _, a := range rule.AutoActions {
		var err error
		switch a.Type {
		case ActionNotify:
			if m.effects.Notifier == nil {
				m.skipAction(rule, a, t)
				continue
			}
			err = m.effects.Notifier.NotifyTransition(ctx, t.Clone(), rule.ID)
		case ActionAssignTo:
			err = m.effects.Assigner.AssignRole(ctx, t.ID, a.Role)
		case ActionCreateSubtask:
			if a.Subtask == nil {
				err = errors.New("createSubtask action without template")
				break
			}
			_, err = m.effects.Subtasks.CreateSubtask(ctx, t.Clone(), *a.Subtask)
		case ActionTriggerWorkflow:
			if m.effects.Workflows == nil {
				m.skipAction(rule, a, t)
				continue
			}
			err = m.effects.Workflows.TriggerWorkflow(ctx, a.WorkflowID, t.Clone())
		case ActionUpdateField:
			err = m.effects.Fields.UpdateField(ctx, t.ID, a.Field, a.Value)
		case ActionCreateGitBranch:
			if m.effects.Branches == nil {
				m.skipAction(rule, a, t)
				continue
			}
			err = m.effects.Branches.CreateBranch(ctx, t.Clone())
		case ActionCreatePR:
			if m.effects.PRs == nil {
				m.skipAction(rule, a, t)
				continue
			}
			err = m.effects.PRs.CreatePR(ctx, t.Clone())
		default:
			err = fmt.Errorf("unknown action type %q", a.Type)
		}
		if err != nil {
			slog.Warn("Ticket auto-action failed",
				"rule", rule.ID,
				"action", a.Type,
				"ticket_id", t.ID,
				"error", err)
		}
	}
}

func (m *Manager) skipAction(rule Rule, a AutoAction, t *models.Ticket) {
	slog.Debug("Ticket auto-action skipped, no collaborator registered",
		"rule", rule.ID,
		"action", a.Type,
		"ticket_id", t.ID)
}
