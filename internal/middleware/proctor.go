package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vigilcbt/vigil-backend/internal/response"
)

// RequireProctorKey guards the read-only report endpoints with a static
// shared key in the X-Proctor-Key header. An empty configured key disables
// the endpoints entirely.
func RequireProctorKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			response.AbortFail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}

		provided := c.GetHeader("X-Proctor-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Next()
	}
}
