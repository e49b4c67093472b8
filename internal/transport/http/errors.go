package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"quizstreak-service/internal/domain"
	"quizstreak-service/internal/logger"
)

func statusFor(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientPoints):
		return http.StatusConflict
	case domain.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, log *logger.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", c.FullPath(), "userId", callerID(c), "error", err)
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
