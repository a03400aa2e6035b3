// Package config loads, merges, and validates the engine configuration from
// YAML files with environment variable expansion.
package config

import (
	"strings"

	"github.com/codehive/swarmd/pkg/models"
)

// Settings is the per-run pipeline configuration. A value copy is handed to
// the orchestrator at job start; it never changes during a run.
type Settings struct {
	// EnabledProviders is the ordered provider rotation for agent spawns.
	EnabledProviders []string `yaml:"enabled_providers"`

	// ParallelCounts maps each role to its stage fan-out (0..6).
	ParallelCounts map[models.AgentRole]int `yaml:"parallel_counts"`

	// ChatsPerAgent is how many independent chats one agent runs (1..20).
	ChatsPerAgent int `yaml:"chats_per_agent"`

	// MaxRuntimeSeconds is the per-agent hard deadline (10..600).
	MaxRuntimeSeconds int `yaml:"max_runtime_seconds"`

	// ResearchDepth parameterizes the research stage prompt.
	ResearchDepth ResearchDepth `yaml:"research_depth"`

	// AutoRerunThreshold gates the validate-stage rerun (0..100).
	// 0 disables reruns entirely.
	AutoRerunThreshold int `yaml:"auto_rerun_threshold"`

	// WorktreeIsolation gives each coder agent its own git worktree.
	WorktreeIsolation bool `yaml:"worktree_isolation"`

	// ContinuousMode repeats the full stage loop (up to 3 attempts total)
	// while final confidence stays below AutoRerunThreshold.
	ContinuousMode bool `yaml:"continuous_mode"`

	// MaxConcurrentJobs bounds the worker pool (1..5).
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`

	// CustomCLICommand, when set, overrides every CLI provider template.
	// It must contain exactly one {PROMPT} substitution point.
	CustomCLICommand string `yaml:"custom_cli_command,omitempty"`

	// ProviderAPIKeys maps provider name to its API secret. Unset entries
	// are resolved from conventional environment variables at load time.
	ProviderAPIKeys map[string]string `yaml:"provider_api_keys,omitempty"`

	// MaxRetries is how many times a non-zero agent exit is retried.
	// Timeouts and signal kills (137/143) are never retried.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelayMS is the fixed delay between agent retries.
	RetryDelayMS int `yaml:"retry_delay_ms"`

	// SemanticValidation enables embedding-based hybrid confidence when an
	// embedding key is also configured.
	SemanticValidation bool `yaml:"semantic_validation"`

	// EmbeddingModel is the embedding model used for hybrid confidence.
	EmbeddingModel string `yaml:"embedding_model,omitempty"`

	GitHub         GitHubConfig         `yaml:"github"`
	Testing        TestingConfig        `yaml:"testing"`
	MCPServers     []MCPServerConfig    `yaml:"mcp_servers,omitempty"`
	CodeValidation CodeValidationConfig `yaml:"code_validation"`
	Guardrail      GuardrailConfig      `yaml:"guardrail"`
	Escalation     EscalationPolicy     `yaml:"escalation"`
	Notifications  NotificationConfig   `yaml:"notifications"`
}

// GitHubConfig holds GitHub integration settings.
type GitHubConfig struct {
	// TokenEnv names the environment variable carrying the token.
	// Defaults to "GITHUB_TOKEN" if omitted.
	TokenEnv string `yaml:"token_env,omitempty"`
}

// NotificationConfig controls Slack delivery of ticket events. The token
// itself never lives in YAML; TokenEnv names the environment variable
// carrying it.
type NotificationConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
	// DashboardURL is the base for ticket links in messages.
	DashboardURL string `yaml:"dashboard_url,omitempty"`
}

// TestingConfig names the commands the security stage runs before the
// security agents. Empty commands are skipped.
type TestingConfig struct {
	TypecheckCommand string `yaml:"typecheck_command,omitempty"`
	LintCommand      string `yaml:"lint_command,omitempty"`
	AuditCommand     string `yaml:"audit_command,omitempty"`
	// CustomCommand is an explicit template with a single {PROMPT}
	// substitution point, not general string interpolation.
	CustomCommand string `yaml:"custom_command,omitempty"`
}

// CodeValidationConfig controls the validate stage gate.
type CodeValidationConfig struct {
	Enabled       bool `yaml:"enabled"`
	BlockOnErrors bool `yaml:"block_on_errors"`
	MinScore      int  `yaml:"min_score"`
}

// GuardrailConfig holds the refusal policy thresholds.
type GuardrailConfig struct {
	MinConfidence    int `yaml:"min_confidence"`
	MinEvidenceCount int `yaml:"min_evidence_count"`
}

// EscalationPolicy controls automatic escalation ticket creation.
type EscalationPolicy struct {
	EscalateOnSLABreach bool `yaml:"escalate_on_sla_breach"`
}

// MCPServerConfig describes one MCP tool server reachable over stdio.
type MCPServerConfig struct {
	ID      string            `yaml:"id"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// PromptPlaceholder is the single substitution point in CLI command
// templates. It is replaced with the path of a temp file holding the prompt.
const PromptPlaceholder = "{PROMPT}"

// ProviderConfig describes one agent provider: a CLI template, an optional
// API backend, or both. When both are present and an API key is configured,
// API mode wins.
type ProviderConfig struct {
	Name string `yaml:"name"`

	// Command is the shell template for CLI mode. {PROMPT} is replaced with
	// the path of a temp file holding the prompt.
	Command string `yaml:"command,omitempty"`

	// APIBackend maps the provider to a hosted API for API mode.
	APIBackend APIBackend `yaml:"api_backend,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Model is the model identifier passed in API mode.
	Model string `yaml:"model,omitempty"`
}

// Binary returns the executable name probed for CLI availability: the first
// word of the command template.
func (p *ProviderConfig) Binary() string {
	fields := strings.Fields(p.Command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// HasAPIBackend reports whether the provider can run in API mode at all.
func (p *ProviderConfig) HasAPIBackend() bool {
	return p.APIBackend.IsValid()
}
