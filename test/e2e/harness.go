// Package e2e boots a complete swarmd instance against the in-memory store
// and drives it over HTTP, the way a deployment would.
package e2e

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/codehive/swarmd/pkg/api"
	"github.com/codehive/swarmd/pkg/cache"
	"github.com/codehive/swarmd/pkg/checks"
	"github.com/codehive/swarmd/pkg/config"
	"github.com/codehive/swarmd/pkg/evidence"
	"github.com/codehive/swarmd/pkg/masking"
	"github.com/codehive/swarmd/pkg/orchestrator"
	"github.com/codehive/swarmd/pkg/queue"
	"github.com/codehive/swarmd/pkg/session"
	"github.com/codehive/swarmd/pkg/store/memory"
	"github.com/codehive/swarmd/pkg/ticket"
)

// nopGit satisfies worktree.GitRunner without touching a real repository, so
// evidence capture degrades the same way it does outside a git checkout.
type nopGit struct{}

func (nopGit) Run(context.Context, string, ...string) (string, error) { return "", nil }

// TestApp is one booted swarmd instance: memory store, worker pool and the
// HTTP server, torn down with the test.
type TestApp struct {
	Store   *memory.Store
	Jobs    *queue.Manager
	Pool    *queue.WorkerPool
	Tickets *ticket.Manager
	Cache   *cache.Cache

	// BaseURL points at the running HTTP server, e.g. "http://127.0.0.1:54321".
	BaseURL string

	t *testing.T
}

type testAppConfig struct {
	providers map[string]*config.ProviderConfig
	mutate    []func(*config.Settings)
	workers   int
}

// TestAppOption configures the app before boot.
type TestAppOption func(*testAppConfig)

// WithProvider registers an extra CLI provider and enables it. Command is a
// shell template; {PROMPT} is substituted with a temp file path, so templates
// that ignore the prompt must comment the placeholder out.
func WithProvider(name, command string) TestAppOption {
	return func(c *testAppConfig) {
		c.providers[name] = &config.ProviderConfig{Name: name, Command: command}
		c.mutate = append(c.mutate, func(s *config.Settings) {
			s.EnabledProviders = []string{name}
		})
	}
}

// WithSettings applies a settings mutation after the test defaults.
func WithSettings(fn func(*config.Settings)) TestAppOption {
	return func(c *testAppConfig) { c.mutate = append(c.mutate, fn) }
}

// WithWorkers sets the worker pool size (default 2).
func WithWorkers(n int) TestAppOption {
	return func(c *testAppConfig) { c.workers = n }
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewTestApp wires the full production stack minus postgres, MCP servers and
// Slack, starts the workers and the HTTP server, and registers cleanup.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tc := &testAppConfig{
		providers: config.BuiltinProviders(),
		workers:   2,
	}
	for _, opt := range opts {
		opt(tc)
	}

	settings := *config.DefaultSettings()
	settings.EnabledProviders = []string{config.MockProviderName}
	settings.MaxRuntimeSeconds = 10
	settings.MaxRetries = 0
	settings.RetryDelayMS = 1
	settings.WorktreeIsolation = false
	for _, fn := range tc.mutate {
		fn(&settings)
	}

	logger := testLogger()
	st := memory.New()
	masker := masking.NewService(nil)
	outputCache := cache.New(64, time.Minute)
	tickets := ticket.NewManager(st, ticket.Options{})
	ledger := evidence.NewLedger(st, nopGit{}, tickets)

	orch := orchestrator.New(orchestrator.Deps{
		Registry: config.NewProviderRegistry(tc.providers),
		Cache:    outputCache,
		Masker:   masker,
		Tickets:  tickets,
		Evidence: ledger,
		Checks:   checks.NewRunner(nil, masker),
		Logger:   logger,
	})

	executor := &queue.PipelineExecutor{
		Orchestrator: orch,
		Settings:     func() config.Settings { return settings },
		ProjectPath:  t.TempDir(),
		Sessions:     session.NewManager(st, logger),
		Logger:       logger,
	}

	qcfg := config.DefaultQueueConfig()
	qcfg.MaxConcurrentJobs = tc.workers
	qcfg.PollInterval = 20 * time.Millisecond
	qcfg.PollIntervalJitter = 10 * time.Millisecond
	qcfg.JobTimeout = 30 * time.Second
	qcfg.GracefulShutdownTimeout = 5 * time.Second

	jobs := queue.NewManager(st, logger)
	pool := queue.NewWorkerPool(st, qcfg, executor, logger)
	jobs.BindCanceller(pool)
	require.NoError(t, pool.Start(context.Background()))

	srv, err := api.New(api.Deps{
		Jobs:   jobs,
		Store:  st,
		Cache:  outputCache,
		Pool:   pool,
		Logger: logger,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		pool.Stop()
	})

	return &TestApp{
		Store:   st,
		Jobs:    jobs,
		Pool:    pool,
		Tickets: tickets,
		Cache:   outputCache,
		BaseURL: ts.URL,
		t:       t,
	}
}
