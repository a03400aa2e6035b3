package agent

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/codehive/swarmd/pkg/config"
	"github.com/codehive/swarmd/pkg/llm"
)

// Factory builds the executor for one agent spawn. API mode wins when the
// provider has both a configured key and an API backend; otherwise the CLI
// template is used. API clients are cached per provider.
type Factory struct {
	registry *config.ProviderRegistry
	settings config.Settings
	prober   *Prober

	mu         sync.Mutex
	apiClients map[string]*llm.Client
}

// NewFactory creates a factory over the provider registry for one run's
// settings.
func NewFactory(registry *config.ProviderRegistry, settings config.Settings) *Factory {
	return &Factory{
		registry:   registry,
		settings:   settings,
		prober:     NewProber(),
		apiClients: make(map[string]*llm.Client),
	}
}

// Providers returns the usable provider rotation for this run.
func (f *Factory) Providers() []string {
	return f.prober.Available(f.registry, f.settings)
}

// Executor builds the executor for provider, running in dir (CLI mode only;
// API and mock executors ignore it).
func (f *Factory) Executor(ctx context.Context, provider, dir string) (Executor, error) {
	if provider == config.MockProviderName {
		return MockExecutor{}, nil
	}

	cfg, err := f.registry.Get(provider)
	if err != nil {
		return nil, fmt.Errorf("provider %q not configured: %w", provider, err)
	}

	apiKey := f.settings.ProviderAPIKeys[provider]
	if apiKey != "" && cfg.HasAPIBackend() {
		client, err := f.apiClient(ctx, cfg, apiKey)
		if err != nil {
			return nil, err
		}
		return NewAPIExecutor(client), nil
	}

	template := cfg.Command
	if f.settings.CustomCLICommand != "" {
		template = f.settings.CustomCLICommand
	}
	if template == "" {
		return nil, fmt.Errorf("provider %q has no CLI command and no usable API key", provider)
	}

	return NewCLIExecutor(template, dir, f.cliEnv(cfg, apiKey)), nil
}

// cliEnv assembles the extra environment for a CLI agent: the provider's
// API key under its conventional variable, and GITHUB_TOKEN when the
// configured token variable is a non-standard name.
func (f *Factory) cliEnv(cfg *config.ProviderConfig, apiKey string) map[string]string {
	env := make(map[string]string)
	if apiKey != "" && cfg.APIKeyEnv != "" {
		env[cfg.APIKeyEnv] = apiKey
	}
	if tokenEnv := f.settings.GitHub.TokenEnv; tokenEnv != "" && tokenEnv != "GITHUB_TOKEN" {
		if token := os.Getenv(tokenEnv); token != "" {
			env["GITHUB_TOKEN"] = token
		}
	}
	return env
}

func (f *Factory) apiClient(ctx context.Context, cfg *config.ProviderConfig, apiKey string) (*llm.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.apiClients[cfg.Name]; ok {
		return client, nil
	}
	client, err := llm.NewClient(ctx, cfg.APIBackend, apiKey, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("API client for %q: %w", cfg.Name, err)
	}
	f.apiClients[cfg.Name] = client
	return client, nil
}
