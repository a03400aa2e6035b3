package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codehive/swarmd/pkg/models"
)

// listSchedulesHandler handles GET /api/v1/schedules.
func (s *Server) listSchedulesHandler(c *gin.Context) {
	tasks, err := s.store.ListScheduledTasks(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// createScheduleHandler handles POST /api/v1/schedules.
// The first run happens one interval after creation.
func (s *Server) createScheduleHandler(c *gin.Context) {
	var req CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body", Detail: err.Error()})
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "name is required"})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "prompt is required"})
		return
	}
	if req.IntervalMinutes < 1 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "interval_minutes must be at least 1"})
		return
	}
	if req.Mode != "" && !models.PipelineMode(req.Mode).IsValid() {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid mode: must be chat, swarm or project"})
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := time.Now().UTC()
	task := &models.ScheduledTask{
		ID:              uuid.New().String(),
		Name:            req.Name,
		Prompt:          req.Prompt,
		Mode:            models.PipelineMode(req.Mode),
		IntervalMinutes: req.IntervalMinutes,
		NextRunAt:       now.Add(time.Duration(req.IntervalMinutes) * time.Minute),
		Enabled:         enabled,
		CreatedAt:       now,
	}

	if err := s.store.PutScheduledTask(c.Request.Context(), task); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// deleteScheduleHandler handles DELETE /api/v1/schedules/:id.
func (s *Server) deleteScheduleHandler(c *gin.Context) {
	taskID := c.Param("id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "schedule id is required"})
		return
	}

	if err := s.store.DeleteScheduledTask(c.Request.Context(), taskID); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
