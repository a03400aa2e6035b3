package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codehive/swarmd/pkg/config"
)

func newTestFactory(settings config.Settings) *Factory {
	return NewFactory(config.NewProviderRegistry(config.BuiltinProviders()), settings)
}

func TestFactoryMockExecutor(t *testing.T) {
	f := newTestFactory(config.Settings{})

	exec, err := f.Executor(context.Background(), config.MockProviderName, "")
	require.NoError(t, err)
	assert.IsType(t, MockExecutor{}, exec)
}

func TestFactoryCLIExecutor(t *testing.T) {
	f := newTestFactory(config.Settings{})

	exec, err := f.Executor(context.Background(), "cursor-agent", "/work/dir")
	require.NoError(t, err)

	cli, ok := exec.(*CLIExecutor)
	require.True(t, ok)
	assert.Contains(t, cli.Template, "cursor-agent")
	assert.Contains(t, cli.Template, config.PromptPlaceholder)
	assert.Equal(t, "/work/dir", cli.Dir)
}

func TestFactoryCustomCommandOverride(t *testing.T) {
	f := newTestFactory(config.Settings{
		CustomCLICommand: `mytool --prompt-file {PROMPT}`,
	})

	exec, err := f.Executor(context.Background(), "claude", "")
	require.NoError(t, err)

	cli, ok := exec.(*CLIExecutor)
	require.True(t, ok)
	assert.Equal(t, `mytool --prompt-file {PROMPT}`, cli.Template)
}

func TestFactoryAPIModeWinsWithKey(t *testing.T) {
	f := newTestFactory(config.Settings{
		ProviderAPIKeys: map[string]string{"chatgpt": "sk-test"},
	})

	exec, err := f.Executor(context.Background(), "chatgpt", "")
	require.NoError(t, err)
	assert.IsType(t, &APIExecutor{}, exec)
}

func TestFactoryCachesAPIClients(t *testing.T) {
	f := newTestFactory(config.Settings{
		ProviderAPIKeys: map[string]string{"chatgpt": "sk-test"},
	})

	first, err := f.Executor(context.Background(), "chatgpt", "")
	require.NoError(t, err)
	second, err := f.Executor(context.Background(), "chatgpt", "")
	require.NoError(t, err)

	assert.Same(t, first.(*APIExecutor).client, second.(*APIExecutor).client)
}

func TestFactoryUnknownProvider(t *testing.T) {
	f := newTestFactory(config.Settings{})

	_, err := f.Executor(context.Background(), "nope", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestFactoryAPIOnlyProviderWithoutKey(t *testing.T) {
	// chatgpt has no CLI template; without a key there is nothing to run.
	f := newTestFactory(config.Settings{})

	_, err := f.Executor(context.Background(), "chatgpt", "")
	require.Error(t, err)
}

func TestFactoryCLIEnvCarriesKeyAndToken(t *testing.T) {
	t.Setenv("SWARMD_TEST_GH_TOKEN", "gh-secret")

	f := newTestFactory(config.Settings{
		GitHub: config.GitHubConfig{TokenEnv: "SWARMD_TEST_GH_TOKEN"},
	})

	cfg := &config.ProviderConfig{Name: "claude", APIKeyEnv: "ANTHROPIC_API_KEY"}
	env := f.cliEnv(cfg, "key-abc")
	assert.Equal(t, "key-abc", env["ANTHROPIC_API_KEY"])
	assert.Equal(t, "gh-secret", env["GITHUB_TOKEN"])
}
