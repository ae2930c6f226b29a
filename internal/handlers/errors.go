package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"messaging-service/internal/services"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotEligible),
		errors.Is(err, services.ErrNotAMember),
		errors.Is(err, services.ErrInvalidParticipant):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrEmptyPayload),
		errors.Is(err, services.ErrSelfChat):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrTransientStore):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrCollaborator):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *ChatHandler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	reason := err.Error()
	switch status {
	case http.StatusInternalServerError:
		h.logger.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		reason = "internal error"
	case http.StatusServiceUnavailable:
		h.logger.Warn("store unavailable", zap.String("route", c.FullPath()), zap.Error(err))
		reason = services.ErrTransientStore.Error()
	case http.StatusBadGateway:
		h.logger.Warn("collaborator failed", zap.String("route", c.FullPath()), zap.Error(err))
		reason = services.ErrCollaborator.Error()
	}
	c.JSON(status, gin.H{"error": reason})
}
