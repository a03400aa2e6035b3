package config

import (
	"fmt"
	"strings"
)

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	// Validate in order: providers → settings → MCP servers → queue → retention
	// This ensures the provider registry is sound before settings reference it

	if err := v.validateProviders(); err != nil {
		return fmt.Errorf("provider validation failed: %w", err)
	}

	if err := v.validateSettings(); err != nil {
		return fmt.Errorf("settings validation failed: %w", err)
	}

	if err := v.validateMCPServers(); err != nil {
		return fmt.Errorf("MCP server validation failed: %w", err)
	}

	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}

	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateProviders() error {
	for _, name := range v.cfg.ProviderRegistry.Names() {
		p, err := v.cfg.ProviderRegistry.Get(name)
		if err != nil {
			return err
		}

		// A provider needs at least one execution path
		if p.Command == "" && !p.HasAPIBackend() {
			return NewValidationError("provider", name, "", fmt.Errorf("needs a command template or an api_backend"))
		}

		// Command templates carry exactly one {PROMPT} substitution point
		if p.Command != "" {
			if n := strings.Count(p.Command, PromptPlaceholder); n != 1 {
				return NewValidationError("provider", name, "command",
					fmt.Errorf("template must contain exactly one %s, found %d", PromptPlaceholder, n))
			}
		}

		if p.APIBackend != "" && !p.APIBackend.IsValid() {
			return NewValidationError("provider", name, "api_backend", fmt.Errorf("invalid backend: %s", p.APIBackend))
		}
	}

	return nil
}

func (v *ConfigValidator) validateSettings() error {
	s := v.cfg.Settings

	if len(s.EnabledProviders) == 0 {
		return NewValidationError("settings", "enabled_providers", "", fmt.Errorf("at least one provider required"))
	}
	for _, name := range s.EnabledProviders {
		if _, err := v.cfg.ProviderRegistry.Get(name); err != nil {
			return NewValidationError("settings", "enabled_providers", "", fmt.Errorf("provider '%s' not found", name))
		}
	}

	for role, count := range s.ParallelCounts {
		if !role.IsValid() {
			return NewValidationError("settings", "parallel_counts", string(role), fmt.Errorf("unknown role"))
		}
		if count < 0 || count > 6 {
			return NewValidationError("settings", "parallel_counts", string(role),
				fmt.Errorf("%w: %d (want 0..6)", ErrInvalidValue, count))
		}
	}

	if s.ChatsPerAgent < 1 || s.ChatsPerAgent > 20 {
		return NewValidationError("settings", "chats_per_agent", "",
			fmt.Errorf("%w: %d (want 1..20)", ErrInvalidValue, s.ChatsPerAgent))
	}

	if s.MaxRuntimeSeconds < 10 || s.MaxRuntimeSeconds > 600 {
		return NewValidationError("settings", "max_runtime_seconds", "",
			fmt.Errorf("%w: %d (want 10..600)", ErrInvalidValue, s.MaxRuntimeSeconds))
	}

	if !s.ResearchDepth.IsValid() {
		return NewValidationError("settings", "research_depth", "",
			fmt.Errorf("%w: %s (want shallow, medium or deep)", ErrInvalidValue, s.ResearchDepth))
	}

	if s.AutoRerunThreshold < 0 || s.AutoRerunThreshold > 100 {
		return NewValidationError("settings", "auto_rerun_threshold", "",
			fmt.Errorf("%w: %d (want 0..100)", ErrInvalidValue, s.AutoRerunThreshold))
	}

	if s.MaxConcurrentJobs < 1 || s.MaxConcurrentJobs > 5 {
		return NewValidationError("settings", "max_concurrent_jobs", "",
			fmt.Errorf("%w: %d (want 1..5)", ErrInvalidValue, s.MaxConcurrentJobs))
	}

	if s.MaxRetries < 0 {
		return NewValidationError("settings", "max_retries", "",
			fmt.Errorf("%w: %d (must not be negative)", ErrInvalidValue, s.MaxRetries))
	}

	if s.RetryDelayMS < 0 {
		return NewValidationError("settings", "retry_delay_ms", "",
			fmt.Errorf("%w: %d (must not be negative)", ErrInvalidValue, s.RetryDelayMS))
	}

	// The CLI override is a template with a single substitution point, not
	// general string interpolation
	if s.CustomCLICommand != "" {
		if n := strings.Count(s.CustomCLICommand, PromptPlaceholder); n != 1 {
			return NewValidationError("settings", "custom_cli_command", "",
				fmt.Errorf("template must contain exactly one %s, found %d", PromptPlaceholder, n))
		}
	}
	if s.Testing.CustomCommand != "" {
		if n := strings.Count(s.Testing.CustomCommand, PromptPlaceholder); n != 1 {
			return NewValidationError("settings", "testing.custom_command", "",
				fmt.Errorf("template must contain exactly one %s, found %d", PromptPlaceholder, n))
		}
	}

	if s.CodeValidation.MinScore < 0 || s.CodeValidation.MinScore > 100 {
		return NewValidationError("settings", "code_validation.min_score", "",
			fmt.Errorf("%w: %d (want 0..100)", ErrInvalidValue, s.CodeValidation.MinScore))
	}

	if s.Guardrail.MinConfidence < 0 || s.Guardrail.MinConfidence > 100 {
		return NewValidationError("settings", "guardrail.min_confidence", "",
			fmt.Errorf("%w: %d (want 0..100)", ErrInvalidValue, s.Guardrail.MinConfidence))
	}
	if s.Guardrail.MinEvidenceCount < 0 {
		return NewValidationError("settings", "guardrail.min_evidence_count", "",
			fmt.Errorf("%w: %d (must not be negative)", ErrInvalidValue, s.Guardrail.MinEvidenceCount))
	}

	return nil
}

func (v *ConfigValidator) validateMCPServers() error {
	for _, id := range v.cfg.MCPServerRegistry.ServerIDs() {
		server, err := v.cfg.MCPServerRegistry.Get(id)
		if err != nil {
			return err
		}
		if server.ID == "" {
			return NewValidationError("mcp_server", id, "id", fmt.Errorf("must not be empty"))
		}
		if server.Command == "" {
			return NewValidationError("mcp_server", id, "command", fmt.Errorf("must not be empty"))
		}
	}
	return nil
}

func (v *ConfigValidator) validateQueue() error {
	q := v.cfg.Queue

	if q.MaxConcurrentJobs < 1 || q.MaxConcurrentJobs > 5 {
		return NewValidationError("queue", "queue", "max_concurrent_jobs",
			fmt.Errorf("%w: %d (want 1..5)", ErrInvalidValue, q.MaxConcurrentJobs))
	}
	if q.PollInterval <= 0 {
		return NewValidationError("queue", "queue", "poll_interval", fmt.Errorf("must be positive"))
	}
	if q.PollIntervalJitter < 0 {
		return NewValidationError("queue", "queue", "poll_interval_jitter", fmt.Errorf("must not be negative"))
	}
	if q.JobTimeout <= 0 {
		return NewValidationError("queue", "queue", "job_timeout", fmt.Errorf("must be positive"))
	}
	if q.GracefulShutdownTimeout <= 0 {
		return NewValidationError("queue", "queue", "graceful_shutdown_timeout", fmt.Errorf("must be positive"))
	}

	return nil
}

func (v *ConfigValidator) validateRetention() error {
	r := v.cfg.Retention

	if r.JobRetentionDays < 1 {
		return NewValidationError("retention", "retention", "job_retention_days", fmt.Errorf("must be at least 1"))
	}
	if r.SweepInterval <= 0 {
		return NewValidationError("retention", "retention", "sweep_interval", fmt.Errorf("must be positive"))
	}

	return nil
}
