package models

// AgentRole identifies the pipeline role an agent executes.
type AgentRole string

const (
	// RoleResearcher gathers background and prior art for the prompt
	RoleResearcher AgentRole = "researcher"
	// RolePlanner produces an implementation plan
	RolePlanner AgentRole = "planner"
	// RoleCoder writes code against the selected plan
	RoleCoder AgentRole = "coder"
	// RoleValidator reviews coder output for correctness
	RoleValidator AgentRole = "validator"
	// RoleSecurity audits the change set for security issues
	RoleSecurity AgentRole = "security"
	// RoleSynthesizer combines stage outputs into the final answer
	RoleSynthesizer AgentRole = "synthesizer"
)

// IsValid checks if the agent role is valid
func (r AgentRole) IsValid() bool {
	switch r {
	case RoleResearcher, RolePlanner, RoleCoder, RoleValidator, RoleSecurity, RoleSynthesizer:
		return true
	default:
		return false
	}
}

// AllAgentRoles returns every role in pipeline order.
func AllAgentRoles() []AgentRole {
	return []AgentRole{RoleResearcher, RolePlanner, RoleCoder, RoleValidator, RoleSecurity, RoleSynthesizer}
}

// AgentStatus tracks the lifecycle of a single agent instance.
// Transitions are monotonic: pending < spawning < running < terminal.
type AgentStatus string

const (
	AgentStatusPending   AgentStatus = "pending"
	AgentStatusSpawning  AgentStatus = "spawning"
	AgentStatusRunning   AgentStatus = "running"
	AgentStatusCompleted AgentStatus = "completed"
	AgentStatusFailed    AgentStatus = "failed"
	AgentStatusCancelled AgentStatus = "cancelled"
)

// IsValid checks if the agent status is valid
func (s AgentStatus) IsValid() bool {
	switch s {
	case AgentStatusPending, AgentStatusSpawning, AgentStatusRunning,
		AgentStatusCompleted, AgentStatusFailed, AgentStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is a terminal state.
func (s AgentStatus) IsTerminal() bool {
	switch s {
	case AgentStatusCompleted, AgentStatusFailed, AgentStatusCancelled:
		return true
	default:
		return false
	}
}

// rank orders statuses for monotonicity checks. Terminal states share a rank.
func (s AgentStatus) rank() int {
	switch s {
	case AgentStatusPending:
		return 0
	case AgentStatusSpawning:
		return 1
	case AgentStatusRunning:
		return 2
	case AgentStatusCompleted, AgentStatusFailed, AgentStatusCancelled:
		return 3
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next preserves the
// monotonic order. Terminal states never transition; cancelled is reachable
// from any non-terminal state.
func (s AgentStatus) CanTransitionTo(next AgentStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == AgentStatusCancelled {
		return true
	}
	return next.rank() > s.rank()
}

// PipelineMode selects which runner handles a request.
type PipelineMode string

const (
	// ModeChat runs a single coder agent with no worktree
	ModeChat PipelineMode = "chat"
	// ModeSwarm runs the full six-stage pipeline
	ModeSwarm PipelineMode = "swarm"
	// ModeProject decomposes the prompt into tickets executed sequentially
	ModeProject PipelineMode = "project"
)

// IsValid checks if the pipeline mode is valid
func (m PipelineMode) IsValid() bool {
	return m == ModeChat || m == ModeSwarm || m == ModeProject
}

// JobState tracks a queued pipeline job.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

// IsValid checks if the job state is valid
func (s JobState) IsValid() bool {
	switch s {
	case JobStateQueued, JobStateRunning, JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the job state is terminal.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces queued -> running -> {completed, failed, cancelled},
// with cancelled reachable from any non-terminal state.
func (s JobState) CanTransitionTo(next JobState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == JobStateCancelled {
		return true
	}
	switch s {
	case JobStateQueued:
		return next == JobStateRunning
	case JobStateRunning:
		return next == JobStateCompleted || next == JobStateFailed
	default:
		return false
	}
}

// TicketStatus is the kanban-style ticket state.
type TicketStatus string

const (
	TicketStatusBacklog    TicketStatus = "backlog"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusReview     TicketStatus = "review"
	TicketStatusApproved   TicketStatus = "approved"
	TicketStatusRejected   TicketStatus = "rejected"
	TicketStatusDone       TicketStatus = "done"
)

// IsValid checks if the ticket status is valid
func (s TicketStatus) IsValid() bool {
	switch s {
	case TicketStatusBacklog, TicketStatusInProgress, TicketStatusReview,
		TicketStatusApproved, TicketStatusRejected, TicketStatusDone:
		return true
	default:
		return false
	}
}

// IsComplete reports whether the status counts as a satisfied dependency.
func (s TicketStatus) IsComplete() bool {
	return s == TicketStatusDone || s == TicketStatusApproved
}

// TicketLevel places a ticket in the decomposition hierarchy.
type TicketLevel string

const (
	LevelFeature   TicketLevel = "feature"
	LevelEpic      TicketLevel = "epic"
	LevelStory     TicketLevel = "story"
	LevelTask      TicketLevel = "task"
	LevelSubtask   TicketLevel = "subtask"
	LevelSubatomic TicketLevel = "subatomic"
)

// IsValid checks if the ticket level is valid
func (l TicketLevel) IsValid() bool {
	switch l {
	case LevelFeature, LevelEpic, LevelStory, LevelTask, LevelSubtask, LevelSubatomic:
		return true
	default:
		return false
	}
}

// ParentLevel returns the level a parent ticket must have. Feature tickets
// are roots and have no parent (ok == false).
func (l TicketLevel) ParentLevel() (TicketLevel, bool) {
	switch l {
	case LevelEpic:
		return LevelFeature, true
	case LevelStory:
		return LevelEpic, true
	case LevelTask:
		return LevelStory, true
	case LevelSubtask:
		return LevelTask, true
	case LevelSubatomic:
		return LevelSubtask, true
	default:
		return "", false
	}
}

// TicketType distinguishes regular work from escalations.
type TicketType string

const (
	TicketTypeTask       TicketType = "task"
	TicketTypeEscalation TicketType = "escalation"
)

// IsValid checks if the ticket type is valid
func (t TicketType) IsValid() bool {
	return t == TicketTypeTask || t == TicketTypeEscalation
}

// Complexity is the t-shirt size estimate on a ticket.
type Complexity string

const (
	ComplexityS  Complexity = "S"
	ComplexityM  Complexity = "M"
	ComplexityL  Complexity = "L"
	ComplexityXL Complexity = "XL"
)

// IsValid checks if the complexity is valid
func (c Complexity) IsValid() bool {
	return c == ComplexityS || c == ComplexityM || c == ComplexityL || c == ComplexityXL
}

// ConfidenceMethod names how a confidence score was computed.
type ConfidenceMethod string

const (
	MethodJaccard  ConfidenceMethod = "jaccard"
	MethodSemantic ConfidenceMethod = "semantic"
	MethodHybrid   ConfidenceMethod = "hybrid"
)

// RefusalReason is a guardrail failure code. Reasons accumulate; a refusal
// payload may carry several.
type RefusalReason string

const (
	ReasonLowConfidence            RefusalReason = "LOW_CONFIDENCE"
	ReasonInsufficientEvidence     RefusalReason = "INSUFFICIENT_EVIDENCE"
	ReasonUpstreamValidationFailed RefusalReason = "UPSTREAM_VALIDATION_FAILED"
	ReasonExplicitRefusalTriggered RefusalReason = "EXPLICIT_REFUSAL_TRIGGERED"
)

// SLARisk classifies how close a ticket is to breaching its SLA.
type SLARisk string

const (
	SLARiskOK       SLARisk = "ok"
	SLARiskWarning  SLARisk = "warning"
	SLARiskBreached SLARisk = "breached"
)

// ActorRole is the permission level of whoever drives a ticket transition.
type ActorRole string

const (
	ActorViewer ActorRole = "viewer"
	ActorEditor ActorRole = "editor"
	ActorAdmin  ActorRole = "admin"
)

func (r ActorRole) rank() int {
	switch r {
	case ActorViewer:
		return 0
	case ActorEditor:
		return 1
	case ActorAdmin:
		return 2
	default:
		return -1
	}
}

// AtLeast reports whether r grants the permissions of required.
func (r ActorRole) AtLeast(required ActorRole) bool {
	return r.rank() >= required.rank() && r.rank() >= 0
}
