package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// getEvidenceHandler handles GET /api/v1/evidence/:id.
func (s *Server) getEvidenceHandler(c *gin.Context) {
	entryID := c.Param("id")
	if entryID == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "evidence id is required"})
		return
	}

	entry, err := s.store.GetEvidence(c.Request.Context(), entryID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}
