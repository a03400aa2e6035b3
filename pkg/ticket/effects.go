package ticket

import (
	"context"

	"github.com/codehive/swarmd/pkg/models"
)

// Notifier is told about successful transitions. Slack is the usual
// implementation.
type Notifier interface {
	NotifyTransition(ctx context.Context, t *models.Ticket, ruleID string) error
}

// Assigner handles the assignTo auto-action.
type Assigner interface {
	AssignRole(ctx context.Context, ticketID string, role models.AgentRole) error
}

// SubtaskCreator handles the createSubtask auto-action. The returned ID is
// the new child ticket.
type SubtaskCreator interface {
	CreateSubtask(ctx context.Context, parent *models.Ticket, tmpl SubtaskTemplate) (string, error)
}

// WorkflowTrigger handles the triggerWorkflow auto-action.
type WorkflowTrigger interface {
	TriggerWorkflow(ctx context.Context, workflowID string, t *models.Ticket) error
}

// FieldUpdater handles the updateField auto-action.
type FieldUpdater interface {
	UpdateField(ctx context.Context, ticketID, field, value string) error
}

// BranchCreator handles the createGitBranch auto-action.
type BranchCreator interface {
	CreateBranch(ctx context.Context, t *models.Ticket) error
}

// PRCreator handles the createPR auto-action.
type PRCreator interface {
	CreatePR(ctx context.Context, t *models.Ticket) error
}

// SideEffects collects the collaborators auto-actions dispatch to. Every
// field may be nil. Assigner, Subtasks and Fields default to the manager
// itself; the rest are skipped with a log line when absent. Failures are
// logged and never roll back the transition that triggered them.
type SideEffects struct {
	Notifier  Notifier
	Assigner  Assigner
	Subtasks  SubtaskCreator
	Workflows WorkflowTrigger
	Fields    FieldUpdater
	Branches  BranchCreator
	PRs       PRCreator
}
