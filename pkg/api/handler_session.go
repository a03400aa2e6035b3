package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// listSessionsHandler handles GET /api/v1/sessions.
// Sessions come back most recently active first.
func (s *Server) listSessionsHandler(c *gin.Context) {
	sessions, err := s.store.ListSessions(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// getSessionHandler handles GET /api/v1/sessions/:id.
func (s *Server) getSessionHandler(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "session id is required"})
		return
	}

	session, err := s.store.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}
