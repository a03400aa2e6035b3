package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// SwarmdYAMLConfig represents the complete swarmd.yaml file structure
type SwarmdYAMLConfig struct {
	Settings   *Settings                  `yaml:"settings"`
	Providers  map[string]*ProviderConfig `yaml:"providers"`
	MCPServers []MCPServerConfig          `yaml:"mcp_servers"`
	Queue      *QueueConfig               `yaml:"queue"`
	Retention  *RetentionConfig           `yaml:"retention"`
	Cache      *CacheConfig               `yaml:"cache"`
}

// ProvidersYAMLConfig represents the optional providers.yaml override file
type ProvidersYAMLConfig struct {
	Providers map[string]*ProviderConfig `yaml:"providers"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load YAML files from configDir (both files are optional)
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge built-in + user-defined configurations
//  5. Resolve provider API keys from conventional environment variables
//  6. Build in-memory registries
//  7. Validate all configuration
//  8. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"providers", stats.Providers,
		"enabled_providers", stats.EnabledProviders,
		"mcp_servers", stats.MCPServers)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	// 1. Load swarmd.yaml (settings, providers, mcp servers, queue, retention).
	// A missing file means run on built-in defaults.
	swarmdConfig, err := loader.loadSwarmdYAML()
	if err != nil {
		return nil, NewLoadError("swarmd.yaml", err)
	}

	// 2. Load optional providers.yaml overrides
	userProviders, err := loader.loadProvidersYAML()
	if err != nil {
		return nil, NewLoadError("providers.yaml", err)
	}

	// 3. Merge settings: user YAML over built-in defaults (non-zero wins)
	settings := DefaultSettings()
	if swarmdConfig.Settings != nil {
		if err := mergo.Merge(settings, swarmdConfig.Settings, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge settings: %w", err)
		}
	}

	// 4. Merge providers: built-in < swarmd.yaml < providers.yaml
	providers, err := mergeProviders(BuiltinProviders(), swarmdConfig.Providers, userProviders)
	if err != nil {
		return nil, fmt.Errorf("failed to merge providers: %w", err)
	}

	// 5. Resolve API keys for enabled providers that name a backend but have
	// no explicit key configured
	resolveAPIKeys(settings, providers)

	// 6. Build registries
	providerRegistry := NewProviderRegistry(providers)
	mcpServerRegistry := NewMCPServerRegistry(swarmdConfig.MCPServers)

	// 7. Resolve queue config (merge user YAML with built-in defaults)
	queueConfig := DefaultQueueConfig()
	if swarmdConfig.Queue != nil {
		if err := mergo.Merge(queueConfig, swarmdConfig.Queue, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}
	if queueConfig.MaxConcurrentJobs == 0 {
		queueConfig.MaxConcurrentJobs = settings.MaxConcurrentJobs
	}

	// 8. Resolve retention config
	retentionConfig := DefaultRetentionConfig()
	if swarmdConfig.Retention != nil {
		if err := mergo.Merge(retentionConfig, swarmdConfig.Retention, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge retention config: %w", err)
		}
	}

	// 9. Resolve cache config
	cacheConfig := DefaultCacheConfig()
	if swarmdConfig.Cache != nil {
		if err := mergo.Merge(cacheConfig, swarmdConfig.Cache, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge cache config: %w", err)
		}
	}

	return &Config{
		configDir:         configDir,
		Settings:          settings,
		Queue:             queueConfig,
		Retention:         retentionConfig,
		Cache:             cacheConfig,
		ProviderRegistry:  providerRegistry,
		MCPServerRegistry: mcpServerRegistry,
	}, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing YAML parser to handle the content (or fail with clearer error message)
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadSwarmdYAML() (*SwarmdYAMLConfig, error) {
	var config SwarmdYAMLConfig

	// Initialize map to avoid nil map
	config.Providers = make(map[string]*ProviderConfig)

	if err := l.loadYAML("swarmd.yaml", &config); err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			slog.Info("No swarmd.yaml found, using built-in defaults")
			return &config, nil
		}
		return nil, err
	}

	return &config, nil
}

func (l *configLoader) loadProvidersYAML() (map[string]*ProviderConfig, error) {
	var config ProvidersYAMLConfig

	config.Providers = make(map[string]*ProviderConfig)

	if err := l.loadYAML("providers.yaml", &config); err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return config.Providers, nil
		}
		return nil, err
	}

	return config.Providers, nil
}

// mergeProviders layers provider maps left to right: later maps override
// earlier ones field-by-field, so a user can change just the model of a
// built-in provider without restating its command template.
func mergeProviders(layers ...map[string]*ProviderConfig) (map[string]*ProviderConfig, error) {
	merged := make(map[string]*ProviderConfig)
	for _, layer := range layers {
		for name, p := range layer {
			if p == nil {
				continue
			}
			existing, ok := merged[name]
			if !ok {
				cp := *p
				cp.Name = name
				merged[name] = &cp
				continue
			}
			if err := mergo.Merge(existing, p, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("provider %q: %w", name, err)
			}
			existing.Name = name
		}
	}
	return merged, nil
}

// resolveAPIKeys fills Settings.ProviderAPIKeys for enabled providers that
// map to an API backend but have no key configured, checking the provider's
// declared APIKeyEnv first and the conventional variable second. Missing keys
// are not an error: the provider simply stays in CLI mode.
func resolveAPIKeys(settings *Settings, providers map[string]*ProviderConfig) {
	if settings.ProviderAPIKeys == nil {
		settings.ProviderAPIKeys = make(map[string]string)
	}
	for _, name := range settings.EnabledProviders {
		if settings.ProviderAPIKeys[name] != "" {
			continue
		}
		p, ok := providers[name]
		if !ok || !p.HasAPIBackend() {
			continue
		}
		envVars := []string{p.APIKeyEnv, conventionalKeyEnv[name]}
		for _, env := range envVars {
			if env == "" {
				continue
			}
			if key := os.Getenv(env); key != "" {
				settings.ProviderAPIKeys[name] = key
				break
			}
		}
	}
}
