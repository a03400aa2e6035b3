package config

import "time"

// Config is the umbrella configuration object returned by Initialize().
// It bundles the pipeline settings, queue and retention knobs, and the
// component registries built at load time.
type Config struct {
	configDir string

	// Settings are the per-run pipeline knobs. The orchestrator receives a
	// value copy at job start, so edits here never affect in-flight runs.
	Settings *Settings

	// Queue and worker pool configuration
	Queue *QueueConfig

	// Retention controls how long terminal jobs are kept
	Retention *RetentionConfig

	// Cache controls the output cache capacity and entry lifetime
	Cache *CacheConfig

	// Component registries
	ProviderRegistry  *ProviderRegistry
	MCPServerRegistry *MCPServerRegistry
}

// Initialize is defined in loader.go

// Stats contains statistics about loaded configuration
type Stats struct {
	Providers        int
	EnabledProviders int
	MCPServers       int
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.ProviderRegistry != nil {
		s.Providers = c.ProviderRegistry.Len()
	}
	if c.Settings != nil {
		s.EnabledProviders = len(c.Settings.EnabledProviders)
	}
	if c.MCPServerRegistry != nil {
		s.MCPServers = c.MCPServerRegistry.Len()
	}
	return s
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetProvider retrieves a provider configuration by name.
// This is a convenience method that wraps ProviderRegistry.Get().
func (c *Config) GetProvider(name string) (*ProviderConfig, error) {
	return c.ProviderRegistry.Get(name)
}

// GetMCPServer retrieves an MCP server configuration by ID.
// This is a convenience method that wraps MCPServerRegistry.Get().
func (c *Config) GetMCPServer(serverID string) (*MCPServerConfig, error) {
	return c.MCPServerRegistry.Get(serverID)
}

// AllMCPServerIDs returns a sorted list of all configured MCP server IDs.
func (c *Config) AllMCPServerIDs() []string {
	return c.MCPServerRegistry.ServerIDs()
}

// QueueConfig contains queue and worker pool configuration.
// These values control how jobs are polled, claimed, and processed.
type QueueConfig struct {
	// MaxConcurrentJobs is the number of worker goroutines. Zero means
	// inherit Settings.MaxConcurrentJobs at load time.
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`

	// PollInterval is the base interval for checking queued jobs.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// JobTimeout is the maximum time a single job can run.
	JobTimeout time.Duration `yaml:"job_timeout"`

	// GracefulShutdownTimeout is the max time to wait for active jobs to
	// complete during shutdown. Should match JobTimeout.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		JobTimeout:              30 * time.Minute,
		GracefulShutdownTimeout: 30 * time.Minute,
	}
}

// CacheConfig controls the output cache shared across jobs.
type CacheConfig struct {
	// MaxEntries is the LRU capacity.
	MaxEntries int `yaml:"max_entries"`

	// TTL is how long a cached output stays usable after insertion.
	TTL time.Duration `yaml:"ttl"`
}

// DefaultCacheConfig returns the built-in cache defaults.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		MaxEntries: 512,
		TTL:        1 * time.Hour,
	}
}

// RetentionConfig controls data retention and cleanup behavior.
type RetentionConfig struct {
	// JobRetentionDays is how many days to keep terminal jobs before the
	// sweeper deletes them.
	JobRetentionDays int `yaml:"job_retention_days"`

	// SweepInterval is how often the retention sweeper runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		JobRetentionDays: 30,
		SweepInterval:    6 * time.Hour,
	}
}
