package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vigilcbt/vigil-backend/internal/middleware"
	"github.com/vigilcbt/vigil-backend/internal/response"
	"github.com/vigilcbt/vigil-backend/internal/service"
)

// attemptClaims pulls the attempt token claims set by the middleware.
// Writes the failure response itself so callers can just return on nil.
func attemptClaims(c *gin.Context) *service.Claims {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil
	}
	return claims
}

// failFromErr maps service sentinels onto HTTP status + error code pairs.
func failFromErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	case errors.Is(err, service.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
	case errors.Is(err, service.ErrAttemptExpired):
		response.Fail(c, http.StatusConflict, response.ErrAttemptExpired)
	case errors.Is(err, service.ErrNotStarted):
		response.Fail(c, http.StatusConflict, response.ErrNotStarted)
	case errors.Is(err, service.ErrInvalidAccessCode):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidAccessCode)
	case errors.Is(err, service.ErrExamNotOpen):
		response.Fail(c, http.StatusForbidden, response.ErrExamNotOpen)
	case errors.Is(err, service.ErrExamClosed):
		response.Fail(c, http.StatusForbidden, response.ErrExamClosed)
	case errors.Is(err, service.ErrAttemptLimitReached):
		response.Fail(c, http.StatusConflict, response.ErrAttemptLimitReached)
	case errors.Is(err, service.ErrInvalidEventType):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidEventType)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
