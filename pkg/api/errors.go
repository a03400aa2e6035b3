package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codehive/swarmd/pkg/queue"
	"github.com/codehive/swarmd/pkg/store"
)

// errorResponse is the JSON envelope every failing endpoint returns.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// mapError translates a domain error into an HTTP status and envelope.
func mapError(err error) (int, errorResponse) {
	var validErr *store.ValidationError
	if errors.As(err, &validErr) {
		return http.StatusBadRequest, errorResponse{Error: "validation failed", Detail: validErr.Error()}
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, errorResponse{Error: "resource not found"}
	}
	if errors.Is(err, queue.ErrJobTerminal) {
		return http.StatusConflict, errorResponse{Error: "job is already in a terminal state"}
	}
	return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
}

// respondError writes the mapped error and logs anything unexpected.
func (s *Server) respondError(c *gin.Context, err error) {
	status, resp := mapError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Unexpected API error", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, resp)
}
