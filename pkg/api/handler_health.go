package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codehive/swarmd/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health and GET /api/v1/health.
// Only the engine's own components are checked. MCP servers and agent
// providers are deliberately not probed: a dead external dependency must
// not make the orchestrator restart the engine.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if s.db != nil {
		if _, err := s.db.Health(reqCtx); err != nil {
			status = healthStatusUnhealthy
			checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["database"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	if s.pool != nil {
		poolHealth := s.pool.Health(reqCtx)
		if !poolHealth.IsHealthy {
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			checks["worker_pool"] = HealthCheck{
				Status:  healthStatusDegraded,
				Message: fmt.Sprintf("%d/%d workers active", poolHealth.ActiveWorkers, poolHealth.TotalWorkers),
			}
		} else {
			checks["worker_pool"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	resp := &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	}
	if s.cfg != nil {
		cfgStats := s.cfg.Stats()
		resp.Configuration = &ConfigurationStats{
			Providers:        cfgStats.Providers,
			EnabledProviders: cfgStats.EnabledProviders,
			MCPServers:       cfgStats.MCPServers,
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, resp)
}
