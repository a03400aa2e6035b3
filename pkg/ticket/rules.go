package ticket

import (
	"github.com/codehive/swarmd/pkg/models"
)

// Actor is whoever drives a transition: a human operator or the pipeline
// itself.
type Actor struct {
	Email string
	Role  models.ActorRole
}

// SystemActor drives transitions the engine makes on its own, such as SLA
// enforcement and dependent unblocking.
var SystemActor = Actor{Email: "system", Role: models.ActorAdmin}

// ConditionType enumerates the built-in transition conditions.
type ConditionType string

const (
	CondHasRole                 ConditionType = "hasRole"
	CondAllDependenciesComplete ConditionType = "allDependenciesComplete"
	CondAllSubtasksComplete     ConditionType = "allSubtasksComplete"
	CondHasDesignPack           ConditionType = "hasDesignPack"
	CondHasDevPack              ConditionType = "hasDevPack"
	CondPassesTests             ConditionType = "passesTests"
	CondHasCodeReview           ConditionType = "hasCodeReview"
	CondCustom                  ConditionType = "custom"
)

// Condition is one predicate a rule requires. Built-in types are evaluated
// by the engine; custom conditions carry their own function.
type Condition struct {
	Type        ConditionType
	Role        models.ActorRole // hasRole only
	Description string
	Fn          func(t *models.Ticket, actor Actor) bool // custom only
}

// HasRole requires the actor to hold at least the given role.
func HasRole(r models.ActorRole) Condition {
	return Condition{Type: CondHasRole, Role: r, Description: "actor has role " + string(r)}
}

// AllDependenciesComplete requires every dependency to be done or approved.
func AllDependenciesComplete() Condition {
	return Condition{Type: CondAllDependenciesComplete, Description: "all dependencies complete"}
}

// AllSubtasksComplete requires every child ticket to be done.
func AllSubtasksComplete() Condition {
	return Condition{Type: CondAllSubtasksComplete, Description: "all subtasks done"}
}

// HasDesignPack requires a design pack registered for the ticket.
func HasDesignPack() Condition {
	return Condition{Type: CondHasDesignPack, Description: "design pack present"}
}

// HasDevPack requires a dev pack registered for the ticket.
func HasDevPack() Condition {
	return Condition{Type: CondHasDevPack, Description: "dev pack present"}
}

// PassesTests requires the last recorded test result to be a pass. With no
// result recorded the condition holds.
func PassesTests() Condition {
	return Condition{Type: CondPassesTests, Description: "tests pass"}
}

// HasCodeReview requires an approved review on record.
func HasCodeReview() Condition {
	return Condition{Type: CondHasCodeReview, Description: "code review approved"}
}

// Custom wraps an arbitrary predicate.
func Custom(description string, fn func(t *models.Ticket, actor Actor) bool) Condition {
	return Condition{Type: CondCustom, Description: description, Fn: fn}
}

// ActionType enumerates transition side effects.
type ActionType string

const (
	ActionNotify          ActionType = "notify"
	ActionAssignTo        ActionType = "assignTo"
	ActionCreateSubtask   ActionType = "createSubtask"
	ActionTriggerWorkflow ActionType = "triggerWorkflow"
	ActionUpdateField     ActionType = "updateField"
	ActionCreateGitBranch ActionType = "createGitBranch"
	ActionCreatePR        ActionType = "createPR"
)

// SubtaskTemplate seeds a ticket created by the createSubtask action. The
// new ticket is parented under the transitioned one.
type SubtaskTemplate struct {
	Title        string
	Description  string
	AssignedRole models.AgentRole
}

// AutoAction is one side effect dispatched after a rule fires. Failures are
// logged and never roll back the transition.
type AutoAction struct {
	Type       ActionType
	Role       models.AgentRole // assignTo
	Subtask    *SubtaskTemplate // createSubtask
	WorkflowID string           // triggerWorkflow
	Field      string           // updateField
	Value      string           // updateField
}

// Rule permits one status transition when all its conditions hold.
type Rule struct {
	ID               string
	Description      string
	From             models.TicketStatus
	To               models.TicketStatus
	Conditions       []Condition
	RequiredFields   []string
	RequiredApproval bool                  // approval gates must be satisfied
	AutoActions      []AutoAction
	BlockedBy        []models.TicketStatus // no dependency may be in these
}

// DefaultRules is the transition table every manager starts from. Callers
// may append their own rules but must not remove these.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:   "start-work",
			From: models.TicketStatusBacklog,
			To:   models.TicketStatusInProgress,
		},
		{
			ID:   "submit-for-review",
			From: models.TicketStatusInProgress,
			To:   models.TicketStatusReview,
		},
		{
			ID:               "approve",
			From:             models.TicketStatusReview,
			To:               models.TicketStatusApproved,
			Conditions:       []Condition{HasRole(models.ActorEditor), HasCodeReview()},
			RequiredApproval: true,
		},
		{
			ID:         "reject",
			From:       models.TicketStatusReview,
			To:         models.TicketStatusRejected,
			Conditions: []Condition{HasRole(models.ActorEditor)},
		},
		{
			ID:   "rework",
			From: models.TicketStatusRejected,
			To:   models.TicketStatusInProgress,
		},
		{
			ID:         "complete",
			From:       models.TicketStatusApproved,
			To:         models.TicketStatusDone,
			Conditions: []Condition{AllSubtasksComplete(), PassesTests()},
		},
		{
			ID:   "return-to-backlog",
			From: models.TicketStatusInProgress,
			To:   models.TicketStatusBacklog,
		},
		{
			ID:          "quick-complete",
			Description: "quick complete",
			From:        models.TicketStatusBacklog,
			To:          models.TicketStatusDone,
			Conditions:  []Condition{HasRole(models.ActorAdmin)},
		},
	}
}
