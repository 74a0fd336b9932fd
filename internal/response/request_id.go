package response

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKeyRequestID is the Gin context key holding the request id.
const ContextKeyRequestID = "request_id"

// RequestIDMiddleware stamps every request with an id and echoes it back in
// the X-Request-ID header. A client-supplied id is kept as-is so the exam
// client can correlate its own retry attempts across reconnects.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
