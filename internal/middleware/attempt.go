package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vigilcbt/vigil-backend/internal/response"
	"github.com/vigilcbt/vigil-backend/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for attempt token claims.
	ContextKeyClaims = "claims"
)

// RequireAttemptToken validates the per-attempt session token from the
// Authorization header and checks it against the :attempt_id path param,
// so one attempt's token cannot drive another attempt.
func RequireAttemptToken(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := extractAndValidateClaims(c, tokens)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		if !matchesAttemptParam(c, claims) {
			response.AbortFail(c, http.StatusForbidden, response.ErrWrongAttempt)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// RequireAttemptWSAuth validates the attempt token from the query param
// ?token=... Used for WebSocket upgrade requests, which cannot set headers.
func RequireAttemptWSAuth(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := tokens.ValidateToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		if !matchesAttemptParam(c, claims) {
			response.AbortFail(c, http.StatusForbidden, response.ErrWrongAttempt)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the attempt token claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

func matchesAttemptParam(c *gin.Context, claims *service.Claims) bool {
	param := c.Param("attempt_id")
	if param == "" {
		return true
	}
	attemptID, err := uuid.Parse(param)
	if err != nil {
		return false
	}
	return attemptID == claims.AttemptID
}

func extractAndValidateClaims(c *gin.Context, tokens *service.TokenService) (*service.Claims, error) {
	tokenStr := ""

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			tokenStr = parts[1]
		}
	}

	// Fallback for EventSource (SSE) which cannot send headers
	if tokenStr == "" {
		tokenStr = c.Query("token")
	}

	if tokenStr == "" {
		return nil, fmt.Errorf("authorization header or token query required")
	}

	return tokens.ValidateToken(tokenStr)
}
