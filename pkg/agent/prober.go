package agent

import (
	"log/slog"
	"os/exec"

	"github.com/codehive/swarmd/pkg/config"
)

// Prober resolves which enabled providers can actually run on this host:
// API providers need a configured key, CLI providers need their binary on
// PATH. When nothing is usable the mock provider is substituted so a
// pipeline can always run.
type Prober struct {
	lookPath func(file string) (string, error)
	logger   *slog.Logger
}

// NewProber creates a prober using exec.LookPath.
func NewProber() *Prober {
	return &Prober{lookPath: exec.LookPath, logger: slog.Default()}
}

// Available filters settings.EnabledProviders to the usable ones, order
// preserved. Never returns an empty slice.
func (p *Prober) Available(registry *config.ProviderRegistry, settings config.Settings) []string {
	var usable []string
	for _, name := range settings.EnabledProviders {
		cfg, err := registry.Get(name)
		if err != nil {
			p.logger.Warn("Enabled provider is not defined, skipping", "provider", name)
			continue
		}
		if p.usable(cfg, settings) {
			usable = append(usable, name)
		} else {
			p.logger.Info("Provider not usable on this host",
				"provider", name, "binary", cfg.Binary())
		}
	}
	if len(usable) == 0 {
		p.logger.Warn("No enabled provider is usable, falling back to mock")
		usable = []string{config.MockProviderName}
	}
	return usable
}

func (p *Prober) usable(cfg *config.ProviderConfig, settings config.Settings) bool {
	if cfg.Name == config.MockProviderName {
		return true
	}
	if settings.ProviderAPIKeys[cfg.Name] != "" && cfg.HasAPIBackend() {
		return true
	}
	template := cfg.Command
	if settings.CustomCLICommand != "" {
		template = settings.CustomCLICommand
	}
	binary := (&config.ProviderConfig{Command: template}).Binary()
	if binary == "" {
		return false
	}
	_, err := p.lookPath(binary)
	return err == nil
}
