package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"careerchat/internal/service/ai"
	"careerchat/internal/service/counselor"
	"careerchat/internal/service/history"
	"careerchat/internal/worker"
)

// writeError maps service errors onto HTTP responses. Configuration is checked
// before upstream since a generation error can carry either.
func (h *Handler) writeError(c *gin.Context, err error) {
	status, code, message := classify(err)
	entry := h.logger.WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": message, "code": code})
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, counselor.ErrValidation):
		return http.StatusBadRequest, "BAD_REQUEST", err.Error()
	case errors.Is(err, history.ErrInvalidPage):
		return http.StatusBadRequest, "BAD_REQUEST", err.Error()
	case errors.Is(err, history.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "you do not have access to this session"
	case errors.Is(err, ai.ErrConfiguration):
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "the AI service is not configured"
	case errors.Is(err, counselor.ErrUpstreamGeneration):
		return http.StatusBadGateway, "BAD_GATEWAY", "the AI service failed to generate a response"
	case errors.Is(err, worker.ErrDispatcherBusy), errors.Is(err, worker.ErrDispatcherStopped):
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "server is busy, please retry"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "request timed out"
	case errors.Is(err, history.ErrPersistence):
		return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to save conversation"
	}
	return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal error"
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "code": "BAD_REQUEST"})
}
