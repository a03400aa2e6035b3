package models

import "time"

// AgentInstance is one subprocess or API call executing a prompt for a
// specific role and provider. Instances are created at stage start and live
// for the duration of the pipeline run.
type AgentInstance struct {
	ID         string      `json:"id"`
	Role       AgentRole   `json:"role"`
	Label      string      `json:"label"`
	Provider   string      `json:"provider"`
	Status     AgentStatus `json:"status"`
	Worktree   string      `json:"worktree,omitempty"`
	Output     string      `json:"output,omitempty"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	ExitCode   *int        `json:"exit_code,omitempty"`
}

// Clone returns an independent copy safe to hand to observers.
func (a *AgentInstance) Clone() *AgentInstance {
	if a == nil {
		return nil
	}
	c := *a
	if a.StartedAt != nil {
		t := *a.StartedAt
		c.StartedAt = &t
	}
	if a.FinishedAt != nil {
		t := *a.FinishedAt
		c.FinishedAt = &t
	}
	if a.ExitCode != nil {
		e := *a.ExitCode
		c.ExitCode = &e
	}
	return &c
}

// SwarmResult is the terminal outcome of a pipeline run. Every mode runner
// produces one, including failure and cancellation paths.
type SwarmResult struct {
	FinalOutput      string          `json:"final_output"`
	Confidence       int             `json:"confidence"`
	Agents           []AgentInstance `json:"agents"`
	Sources          []string        `json:"sources"`
	ValidationPassed bool            `json:"validation_passed"`
}
