package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codehive/swarmd/pkg/models"
)

// listTicketsHandler handles GET /api/v1/tickets.
// ?status= accepts a comma-separated list; ?project_id= narrows to one
// project's backlog.
func (s *Server) listTicketsHandler(c *gin.Context) {
	statuses := make(map[models.TicketStatus]bool)
	if v := c.Query("status"); v != "" {
		for _, raw := range strings.Split(v, ",") {
			st := models.TicketStatus(raw)
			if !st.IsValid() {
				c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid status: " + raw})
				return
			}
			statuses[st] = true
		}
	}
	projectID := c.Query("project_id")

	tickets, err := s.store.ListTickets(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	filtered := tickets[:0]
	for _, t := range tickets {
		if len(statuses) > 0 && !statuses[t.Status] {
			continue
		}
		if projectID != "" && t.ProjectID != projectID {
			continue
		}
		filtered = append(filtered, t)
	}

	c.JSON(http.StatusOK, filtered)
}

// getTicketHandler handles GET /api/v1/tickets/:id.
func (s *Server) getTicketHandler(c *gin.Context) {
	ticketID := c.Param("id")
	if ticketID == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "ticket id is required"})
		return
	}

	ticket, err := s.store.GetTicket(c.Request.Context(), ticketID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}
