package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codehive/swarmd/pkg/models"
)

// maxPromptBytes caps the prompt accepted over HTTP. Larger payloads are
// rejected before anything is stored.
const maxPromptBytes = 1 << 20

// createJobHandler handles POST /api/v1/jobs.
// The job is enqueued and picked up by the worker pool; the response
// returns immediately with the job id.
func (s *Server) createJobHandler(c *gin.Context) {
	var req SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body", Detail: err.Error()})
		return
	}

	if strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "prompt is required"})
		return
	}
	if len(req.Prompt) > maxPromptBytes {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{
			Error: fmt.Sprintf("prompt exceeds maximum size of %d bytes", maxPromptBytes),
		})
		return
	}
	if req.Mode != "" && !models.PipelineMode(req.Mode).IsValid() {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid mode: must be chat, swarm or project"})
		return
	}

	job, err := s.jobs.Enqueue(c.Request.Context(), req.Prompt, models.PipelineMode(req.Mode), req.SessionID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, &SubmitResponse{
		JobID:   job.ID,
		Status:  string(job.Status),
		Message: "job queued for processing",
	})
}

// getJobHandler handles GET /api/v1/jobs/:id.
func (s *Server) getJobHandler(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "job id is required"})
		return
	}

	job, err := s.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// listJobsHandler handles GET /api/v1/jobs.
// Jobs come back newest first; ?status= filters by state and ?limit=
// truncates the result.
func (s *Server) listJobsHandler(c *gin.Context) {
	var status models.JobState
	if v := c.Query("status"); v != "" {
		status = models.JobState(v)
		if !status.IsValid() {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid status: " + v})
			return
		}
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid limit: must be a positive integer"})
			return
		}
		limit = n
	}

	jobs, err := s.jobs.List(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	if status != "" {
		filtered := jobs[:0]
		for _, j := range jobs {
			if j.Status == status {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}

	c.JSON(http.StatusOK, jobs)
}

// cancelJobHandler handles POST /api/v1/jobs/:id/cancel.
func (s *Server) cancelJobHandler(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "job id is required"})
		return
	}

	job, err := s.jobs.Cancel(c.Request.Context(), jobID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, &CancelResponse{
		JobID:   job.ID,
		Status:  string(job.Status),
		Message: "job cancellation requested",
	})
}
