package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codehive/swarmd/pkg/cache"
)

// cacheStatsHandler handles GET /api/v1/cache/stats.
func (s *Server) cacheStatsHandler(c *gin.Context) {
	var stats cache.Stats
	if s.cache != nil {
		stats = s.cache.Stats()
	}
	c.JSON(http.StatusOK, stats)
}
