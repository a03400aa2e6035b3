package api

// SubmitResponse is returned by POST /api/v1/jobs.
type SubmitResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CancelResponse is returned by POST /api/v1/jobs/:id/cancel.
// Status reflects the job after the request: "cancelled" when the record
// was settled directly, "running" when the owning worker was signalled
// and will settle it.
type CancelResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HealthCheck is one component's verdict inside HealthResponse.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status        string                 `json:"status"`
	Version       string                 `json:"version"`
	Checks        map[string]HealthCheck `json:"checks"`
	Configuration *ConfigurationStats    `json:"configuration,omitempty"`
}

// ConfigurationStats counts the loaded configuration objects.
type ConfigurationStats struct {
	Providers        int `json:"providers"`
	EnabledProviders int `json:"enabled_providers"`
	MCPServers       int `json:"mcp_servers"`
}
