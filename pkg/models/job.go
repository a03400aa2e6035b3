package models

import "time"

// Job is one queued pipeline run. Jobs survive process restarts only as
// re-executable records: non-terminal jobs are reset to queued on boot.
// Origin is empty for API submissions and "scheduled" for jobs enqueued by
// the scheduler; it flows into refusal payloads as the pipeline context.
type Job struct {
	ID           string       `json:"id"`
	SessionID    string       `json:"session_id,omitempty"`
	Prompt       string       `json:"prompt"`
	Mode         PipelineMode `json:"mode"`
	Origin       string       `json:"origin,omitempty"`
	Status       JobState     `json:"status"`
	Progress     int          `json:"progress"`
	CurrentStage string       `json:"current_stage,omitempty"`
	Result       *SwarmResult `json:"result,omitempty"`
	Error        string       `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// Clone returns an independent copy.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Result != nil {
		r := *j.Result
		r.Agents = append([]AgentInstance(nil), j.Result.Agents...)
		r.Sources = append([]string(nil), j.Result.Sources...)
		c.Result = &r
	}
	return &c
}

// Session groups consecutive chat prompts so chat mode can thread history.
type Session struct {
	ID         string       `json:"id"`
	Title      string       `json:"title,omitempty"`
	Mode       PipelineMode `json:"mode"`
	LastPrompt string       `json:"last_prompt,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// ScheduledTask is a stored prompt enqueued periodically by the scheduler.
// Jobs it creates carry the "scheduled" pipeline context in refusals.
type ScheduledTask struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Prompt          string       `json:"prompt"`
	Mode            PipelineMode `json:"mode"`
	IntervalMinutes int          `json:"interval_minutes"`
	NextRunAt       time.Time    `json:"next_run_at"`
	Enabled         bool         `json:"enabled"`
	CreatedAt       time.Time    `json:"created_at"`
}
