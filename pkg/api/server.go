// Package api exposes the engine over HTTP: job submission and lifecycle,
// ticket and evidence reads, session listing, scheduled task management,
// cache statistics and a health probe. Handlers validate input, delegate to
// the queue manager or the store, and map domain errors onto a small JSON
// error envelope.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codehive/swarmd/pkg/cache"
	"github.com/codehive/swarmd/pkg/config"
	"github.com/codehive/swarmd/pkg/database"
	"github.com/codehive/swarmd/pkg/queue"
	"github.com/codehive/swarmd/pkg/store"
)

// Deps carries the server's collaborators. Jobs and Store are required;
// the optional ones drop their endpoints' detail rather than failing:
// a nil DB skips the database health check, a nil Pool skips the worker
// check, a nil Cache reports zero stats.
type Deps struct {
	Jobs   *queue.Manager
	Store  store.Store
	Cache  *cache.Cache
	Config *config.Config
	DB     *database.Client
	Pool   *queue.WorkerPool
	Logger *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	jobs   *queue.Manager
	store  store.Store
	cache  *cache.Cache
	cfg    *config.Config
	db     *database.Client
	pool   *queue.WorkerPool
	logger *slog.Logger

	engine *gin.Engine
	http   *http.Server
}

// New builds the server and registers all routes.
func New(deps Deps) (*Server, error) {
	if deps.Jobs == nil {
		return nil, errors.New("api: job manager is required")
	}
	if deps.Store == nil {
		return nil, errors.New("api: store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		jobs:   deps.Jobs,
		store:  deps.Store,
		cache:  deps.Cache,
		cfg:    deps.Config,
		db:     deps.DB,
		pool:   deps.Pool,
		logger: logger,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger), securityHeaders())
	s.engine = engine
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	// Unversioned health endpoint for orchestrator probes.
	s.engine.GET("/health", s.healthHandler)

	v1 := s.engine.Group("/api/v1")
	v1.GET("/health", s.healthHandler)

	v1.POST("/jobs", s.createJobHandler)
	v1.GET("/jobs", s.listJobsHandler)
	v1.GET("/jobs/:id", s.getJobHandler)
	v1.POST("/jobs/:id/cancel", s.cancelJobHandler)

	v1.GET("/tickets", s.listTicketsHandler)
	v1.GET("/tickets/:id", s.getTicketHandler)

	v1.GET("/evidence/:id", s.getEvidenceHandler)

	v1.GET("/sessions", s.listSessionsHandler)
	v1.GET("/sessions/:id", s.getSessionHandler)

	v1.GET("/schedules", s.listSchedulesHandler)
	v1.POST("/schedules", s.createScheduleHandler)
	v1.DELETE("/schedules/:id", s.deleteScheduleHandler)

	v1.GET("/cache/stats", s.cacheStatsHandler)
}

// Handler returns the underlying router, used by tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on addr and serves until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown stops accepting new requests and waits for in-flight ones
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
