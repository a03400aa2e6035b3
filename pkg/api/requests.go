package api

// SubmitJobRequest is the HTTP request body for POST /api/v1/jobs.
// Mode is optional; when empty the orchestrator detects it from the prompt.
type SubmitJobRequest struct {
	Prompt    string `json:"prompt"`
	Mode      string `json:"mode,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// CreateScheduleRequest is the HTTP request body for POST /api/v1/schedules.
// Enabled defaults to true when omitted.
type CreateScheduleRequest struct {
	Name            string `json:"name"`
	Prompt          string `json:"prompt"`
	Mode            string `json:"mode,omitempty"`
	IntervalMinutes int    `json:"interval_minutes"`
	Enabled         *bool  `json:"enabled,omitempty"`
}
