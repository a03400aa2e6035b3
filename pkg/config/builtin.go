package config

import "github.com/codehive/swarmd/pkg/models"

// MockProviderName is the fallback provider registered when no enabled
// provider has an installed CLI or a usable API key. It echoes a placeholder
// so the pipeline never aborts for lack of providers.
const MockProviderName = "mock"

// BuiltinProviders returns the provider definitions shipped with the engine.
// User-defined providers merge over these by name.
func BuiltinProviders() map[string]*ProviderConfig {
	return map[string]*ProviderConfig{
		"claude": {
			Name:       "claude",
			Command:    `claude -p "$(cat {PROMPT})"`,
			APIBackend: APIBackendAnthropic,
			APIKeyEnv:  "ANTHROPIC_API_KEY",
			Model:      "claude-sonnet-4-20250514",
		},
		"cursor-agent": {
			Name:    "cursor-agent",
			Command: `cursor-agent -p "$(cat {PROMPT})"`,
		},
		"codex": {
			Name:    "codex",
			Command: `codex exec "$(cat {PROMPT})"`,
		},
		"gemini": {
			Name:    "gemini",
			Command: `gemini -p "$(cat {PROMPT})"`,
		},
		"chatgpt": {
			Name:       "chatgpt",
			APIBackend: APIBackendOpenAI,
			APIKeyEnv:  "OPENAI_API_KEY",
			Model:      "gpt-4o",
		},
		"gemini-api": {
			Name:       "gemini-api",
			APIBackend: APIBackendGoogleAI,
			APIKeyEnv:  "GOOGLE_API_KEY",
			Model:      "gemini-2.0-flash",
		},
		MockProviderName: {
			Name: MockProviderName,
		},
	}
}

// DefaultSettings returns the built-in settings. User YAML merges over these.
func DefaultSettings() *Settings {
	return &Settings{
		EnabledProviders: []string{"claude", "cursor-agent"},
		ParallelCounts: map[models.AgentRole]int{
			models.RoleResearcher:  1,
			models.RolePlanner:     1,
			models.RoleCoder:       2,
			models.RoleValidator:   1,
			models.RoleSecurity:    1,
			models.RoleSynthesizer: 1,
		},
		ChatsPerAgent:      1,
		MaxRuntimeSeconds:  120,
		ResearchDepth:      ResearchDepthMedium,
		AutoRerunThreshold: 60,
		WorktreeIsolation:  true,
		ContinuousMode:     false,
		MaxConcurrentJobs:  2,
		MaxRetries:         2,
		RetryDelayMS:       1000,
		SemanticValidation: false,
		EmbeddingModel:     "text-embedding-3-small",
		GitHub:             GitHubConfig{TokenEnv: "GITHUB_TOKEN"},
		CodeValidation: CodeValidationConfig{
			Enabled:       true,
			BlockOnErrors: false,
			MinScore:      60,
		},
		Guardrail: GuardrailConfig{
			MinConfidence:    30,
			MinEvidenceCount: 1,
		},
		Escalation:    EscalationPolicy{EscalateOnSLABreach: true},
		Notifications: NotificationConfig{TokenEnv: "SLACK_BOT_TOKEN"},
	}
}

// conventionalKeyEnv maps provider names to the environment variable
// conventionally carrying their API key.
var conventionalKeyEnv = map[string]string{
	"chatgpt":    "OPENAI_API_KEY",
	"gemini-api": "GOOGLE_API_KEY",
	"claude":     "ANTHROPIC_API_KEY",
}
