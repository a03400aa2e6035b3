// swarmd orchestration server — serves the HTTP API, runs the job queue
// workers, and fans prompts out across coding agent swarms.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/codehive/swarmd/pkg/api"
	"github.com/codehive/swarmd/pkg/cache"
	"github.com/codehive/swarmd/pkg/checks"
	"github.com/codehive/swarmd/pkg/confidence"
	"github.com/codehive/swarmd/pkg/config"
	"github.com/codehive/swarmd/pkg/database"
	"github.com/codehive/swarmd/pkg/evidence"
	"github.com/codehive/swarmd/pkg/llm"
	"github.com/codehive/swarmd/pkg/masking"
	"github.com/codehive/swarmd/pkg/mcp"
	"github.com/codehive/swarmd/pkg/notify"
	"github.com/codehive/swarmd/pkg/orchestrator"
	"github.com/codehive/swarmd/pkg/queue"
	"github.com/codehive/swarmd/pkg/schedule"
	"github.com/codehive/swarmd/pkg/session"
	"github.com/codehive/swarmd/pkg/store"
	"github.com/codehive/swarmd/pkg/store/memory"
	"github.com/codehive/swarmd/pkg/store/postgres"
	"github.com/codehive/swarmd/pkg/ticket"
	"github.com/codehive/swarmd/pkg/version"
	"github.com/codehive/swarmd/pkg/worktree"
	"github.com/joho/godotenv"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// logLevel maps LOG_LEVEL to a slog level. Unknown values mean info.
func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openStore connects to postgres when the environment configures one and
// falls back to the in-memory store otherwise. The client is nil in memory
// mode.
func openStore(ctx context.Context) (store.Store, *database.Client, error) {
	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	if !dbCfg.Configured() {
		slog.Info("No database configured, using in-memory store")
		return memory.New(), nil, nil
	}
	client, err := database.Connect(ctx, dbCfg)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Connected to PostgreSQL database")
	return postgres.New(client.Pool()), client, nil
}

// buildEmbedder picks the first enabled provider whose API backend serves
// embeddings and has a resolved key, preferring OpenAI over Google. Nil
// degrades confidence scoring to heuristics only.
func buildEmbedder(ctx context.Context, cfg *config.Config) confidence.Embedder {
	for _, backend := range []config.APIBackend{config.APIBackendOpenAI, config.APIBackendGoogleAI} {
		for name, key := range cfg.Settings.ProviderAPIKeys {
			if key == "" {
				continue
			}
			p, err := cfg.GetProvider(name)
			if err != nil || p.APIBackend != backend {
				continue
			}
			emb, err := llm.NewEmbedder(ctx, backend, key, "")
			if err != nil {
				slog.Warn("Failed to initialize embedding client",
					"provider", name, "backend", string(backend), "error", err)
				continue
			}
			slog.Info("Embedding client initialized",
				"provider", name, "backend", string(backend))
			return emb
		}
	}
	return nil
}

// buildNotifier assembles the Slack notifier when notifications are enabled
// and a token is present. Nil means notifications stay off.
func buildNotifier(nc config.NotificationConfig) *notify.Service {
	if !nc.Enabled {
		return nil
	}
	tokenEnv := nc.TokenEnv
	if tokenEnv == "" {
		tokenEnv = "SLACK_BOT_TOKEN"
	}
	svc := notify.NewService(notify.ServiceConfig{
		Token:        os.Getenv(tokenEnv),
		Channel:      nc.Channel,
		DashboardURL: nc.DashboardURL,
	})
	if svc == nil {
		slog.Warn("Notifications enabled but token or channel missing, notifier disabled",
			"token_env", tokenEnv, "channel", nc.Channel)
	}
	return svc
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env before configuring logging so a LOG_LEVEL set there counts
	envPath := filepath.Join(*configDir, ".env")
	envErr := godotenv.Load(envPath)

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	})))

	if envErr != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", envErr)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	projectPath := getEnv("PROJECT_PATH", ".")

	slog.Info("Starting swarmd",
		"version", version.Full(),
		"http_port", httpPort,
		"project_path", projectPath,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Open the store: postgres when configured, in-memory otherwise.
	// Connect also applies pending migrations.
	st, dbClient, err := openStore(ctx)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	if dbClient != nil {
		defer dbClient.Close()
	}

	// 3. MCP servers: connect eagerly so a misconfigured server surfaces at
	// boot. Failures are reported, never fatal; post-processing skips the
	// broken servers.
	mcpClient := mcp.NewClient(cfg.MCPServerRegistry)
	if serverIDs := cfg.AllMCPServerIDs(); len(serverIDs) > 0 {
		_ = mcpClient.Initialize(ctx)
		failed := mcpClient.FailedServers()
		if len(failed) > 0 {
			slog.Warn("MCP servers failed startup validation", "failed_servers", failed)
		}
		slog.Info("MCP servers initialized",
			"configured", len(serverIDs), "failed", len(failed))
	}
	defer func() {
		if err := mcpClient.Close(); err != nil {
			slog.Error("Error closing MCP client", "error", err)
		}
	}()

	// 4. Shared collaborators: masking, output cache, checks, worktrees
	masker := masking.NewService(nil)
	outputCache := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	checksRunner := checks.NewRunner(nil, masker)
	worktrees := worktree.NewManager(&worktree.ExecGit{}, "")

	// 5. Ticket engine, Slack notifier, evidence ledger
	notifier := buildNotifier(cfg.Settings.Notifications)
	ticketOpts := ticket.Options{
		EscalateOnSLABreach: cfg.Settings.Escalation.EscalateOnSLABreach,
	}
	if notifier != nil {
		// Assigning a nil *notify.Service would make the interface non-nil
		ticketOpts.Effects.Notifier = notifier
	}
	tickets := ticket.NewManager(st, ticketOpts)
	if notifier != nil {
		tickets.OnUpdate(notifier.Observer())
		slog.Info("Slack notifications enabled", "channel", cfg.Settings.Notifications.Channel)
	}
	ledger := evidence.NewLedger(st, nil, tickets)

	// 6. Embedding client for hybrid confidence (optional)
	var embedder confidence.Embedder
	if cfg.Settings.SemanticValidation {
		embedder = buildEmbedder(ctx, cfg)
		if embedder == nil {
			slog.Warn("Semantic validation requested but no embedding backend available, scoring stays heuristic")
		}
	}

	// 7. Orchestrator and pipeline executor
	orch := orchestrator.New(orchestrator.Deps{
		Registry:  cfg.ProviderRegistry,
		Servers:   cfg.MCPServerRegistry,
		Cache:     outputCache,
		Worktrees: worktrees,
		Masker:    masker,
		MCP:       mcpClient,
		Tickets:   tickets,
		Evidence:  ledger,
		Checks:    checksRunner,
		Embedder:  embedder,
	})

	sessions := session.NewManager(st, nil)
	executor := &queue.PipelineExecutor{
		Orchestrator: orch,
		Settings:     func() config.Settings { return *cfg.Settings },
		ProjectPath:  projectPath,
		Sessions:     sessions,
	}

	// 8. Job manager and worker pool (workers start before HTTP). Start
	// requeues jobs a previous process left running.
	jobs := queue.NewManager(st, nil)
	pool := queue.NewWorkerPool(st, cfg.Queue, executor, nil)
	jobs.BindCanceller(pool)
	if err := pool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// 9. Background loops: scheduled tasks, retention sweeps
	scheduler := schedule.NewScheduler(st, jobs, 0, nil)
	scheduler.Start(ctx)
	retention := schedule.NewRetention(st, cfg.Retention, nil)
	retention.Start(ctx)

	// 10. HTTP server (non-blocking)
	server, err := api.New(api.Deps{
		Jobs:   jobs,
		Store:  st,
		Cache:  outputCache,
		Config: cfg,
		DB:     dbClient,
		Pool:   pool,
	})
	if err != nil {
		slog.Error("Failed to build HTTP server", "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	storeKind := "memory"
	if dbClient != nil {
		storeKind = "postgres"
	}
	slog.Info("swarmd started successfully",
		"workers", cfg.Queue.MaxConcurrentJobs,
		"store", storeKind)

	// 11. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 12. Graceful shutdown. Background loops stop first so nothing enqueues
	// while workers drain.
	scheduler.Stop()
	retention.Stop()

	workerShutdownCtx, workerCancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer workerCancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-workerShutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded, unfinished jobs requeue on next boot")
	}

	// Stop HTTP server with its own timeout budget
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
