package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/gateway"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/resilience"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/scheduler"
)

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, resilience.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, scheduler.ErrTargetNotFound), errors.Is(err, gateway.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrTargetExists):
		return http.StatusConflict
	case resilience.IsCircuitOpen(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, gateway.ErrAllFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request error", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}
