package models

import "time"

// SLA is the service level window attached to a ticket. Risk is computed
// lazily on readiness queries, never stored.
type SLA struct {
	TargetMinutes       int        `json:"target_minutes"`
	WarningThresholdPct int        `json:"warning_threshold_pct"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
}

// Risk classifies the SLA state at the given instant.
func (s *SLA) Risk(now time.Time) SLARisk {
	if s == nil || s.StartedAt == nil || s.TargetMinutes <= 0 {
		return SLARiskOK
	}
	elapsed := now.Sub(*s.StartedAt)
	target := time.Duration(s.TargetMinutes) * time.Minute
	if elapsed >= target {
		return SLARiskBreached
	}
	pct := s.WarningThresholdPct
	if pct <= 0 {
		pct = 80
	}
	if elapsed >= target*time.Duration(pct)/100 {
		return SLARiskWarning
	}
	return SLARiskOK
}

// Approvals records which named gates a ticket requires and which have been
// granted.
type Approvals struct {
	RequiredGates []string `json:"required_gates,omitempty"`
	ApprovedGates []string `json:"approved_gates,omitempty"`
}

// Satisfied reports whether every required gate has been approved.
func (a *Approvals) Satisfied() bool {
	if a == nil || len(a.RequiredGates) == 0 {
		return true
	}
	approved := make(map[string]bool, len(a.ApprovedGates))
	for _, g := range a.ApprovedGates {
		approved[g] = true
	}
	for _, g := range a.RequiredGates {
		if !approved[g] {
			return false
		}
	}
	return true
}

// ApprovalRecord is one entry in a ticket's approval history.
type ApprovalRecord struct {
	Action     string    `json:"action"`
	Timestamp  time.Time `json:"timestamp"`
	ActorEmail string    `json:"actor_email"`
}

// Ticket is a unit of work in the hierarchical backlog. Tickets are created
// and mutated only through the ticket manager; everyone else sees copies.
type Ticket struct {
	ID                 string           `json:"id"`
	ProjectID          string           `json:"project_id"`
	Title              string           `json:"title"`
	Description        string           `json:"description,omitempty"`
	AcceptanceCriteria []string         `json:"acceptance_criteria,omitempty"`
	Complexity         Complexity       `json:"complexity,omitempty"`
	Status             TicketStatus     `json:"status"`
	AssignedRole       AgentRole        `json:"assigned_role,omitempty"`
	Level              TicketLevel      `json:"level,omitempty"`
	ParentID           string           `json:"parent_id,omitempty"`
	Dependencies       []string         `json:"dependencies,omitempty"`
	EvidenceIDs        []string         `json:"evidence_ids,omitempty"`
	Approvals          Approvals        `json:"approvals"`
	SLA                *SLA             `json:"sla,omitempty"`
	RetryCount         int              `json:"retry_count"`
	Type               TicketType       `json:"type,omitempty"`
	OriginalTicketID   string           `json:"original_ticket_id,omitempty"`
	ApprovalHistory    []ApprovalRecord `json:"approval_history,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Clone returns a deep copy. The ticket manager hands out clones so callers
// never share mutable state with it.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.AcceptanceCriteria = append([]string(nil), t.AcceptanceCriteria...)
	c.Dependencies = append([]string(nil), t.Dependencies...)
	c.EvidenceIDs = append([]string(nil), t.EvidenceIDs...)
	c.Approvals.RequiredGates = append([]string(nil), t.Approvals.RequiredGates...)
	c.Approvals.ApprovedGates = append([]string(nil), t.Approvals.ApprovedGates...)
	c.ApprovalHistory = append([]ApprovalRecord(nil), t.ApprovalHistory...)
	if t.SLA != nil {
		sla := *t.SLA
		if t.SLA.StartedAt != nil {
			st := *t.SLA.StartedAt
			sla.StartedAt = &st
		}
		c.SLA = &sla
	}
	return &c
}
