package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codehive/swarmd/pkg/cache"
	"github.com/codehive/swarmd/pkg/config"
	"github.com/codehive/swarmd/pkg/events"
	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/queue"
	"github.com/codehive/swarmd/pkg/store/memory"
)

type noopExecutor struct{}

func (noopExecutor) Execute(context.Context, *models.Job, events.Emitter) (*models.SwarmResult, error) {
	return &models.SwarmResult{FinalOutput: "ok"}, nil
}

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthHandler(t *testing.T) {
	t.Run("memory mode is healthy with no checks", func(t *testing.T) {
		srv, _ := newTestServer(t)

		rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeHealth(t, rec)
		assert.Equal(t, healthStatusHealthy, resp.Status)
		assert.Empty(t, resp.Checks)
		assert.NotEmpty(t, resp.Version)
	})

	t.Run("unversioned probe route works", func(t *testing.T) {
		srv, _ := newTestServer(t)

		rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("stopped worker pool degrades", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		st := memory.New()
		cfg := config.DefaultQueueConfig()
		pool := queue.NewWorkerPool(st, cfg, noopExecutor{}, testLogger())

		srv, err := New(Deps{
			Jobs:   queue.NewManager(st, testLogger()),
			Store:  st,
			Pool:   pool,
			Logger: testLogger(),
		})
		require.NoError(t, err)

		rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		require.Equal(t, http.StatusOK, rec.Code, "degraded still answers 200")

		resp := decodeHealth(t, rec)
		assert.Equal(t, healthStatusDegraded, resp.Status)
		assert.Equal(t, healthStatusDegraded, resp.Checks["worker_pool"].Status)
	})

	t.Run("reports configuration counts", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		st := memory.New()
		appCfg := &config.Config{
			Settings:          &config.Settings{EnabledProviders: []string{config.MockProviderName}},
			ProviderRegistry:  config.NewProviderRegistry(config.BuiltinProviders()),
			MCPServerRegistry: config.NewMCPServerRegistry(nil),
		}

		srv, err := New(Deps{
			Jobs:   queue.NewManager(st, testLogger()),
			Store:  st,
			Config: appCfg,
			Logger: testLogger(),
		})
		require.NoError(t, err)

		rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeHealth(t, rec)
		require.NotNil(t, resp.Configuration)
		assert.Equal(t, 1, resp.Configuration.EnabledProviders)
		assert.Positive(t, resp.Configuration.Providers)
	})
}

func TestCacheStatsHandler(t *testing.T) {
	t.Run("returns counters", func(t *testing.T) {
		srv, _ := newTestServer(t)

		rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var stats cache.Stats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Equal(t, 8, stats.MaxSize)
		assert.Zero(t, stats.Size)
	})

	t.Run("nil cache reports zeros", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		st := memory.New()
		srv, err := New(Deps{Jobs: queue.NewManager(st, testLogger()), Store: st, Logger: testLogger()})
		require.NoError(t, err)

		rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var stats cache.Stats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Zero(t, stats.MaxSize)
	})
}
