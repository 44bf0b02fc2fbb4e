package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"clipforge/pkg/errno"
	"clipforge/pkg/restapi"
)

const traceIDKey = "trace_id"

// TraceMiddleware injects a trace_id for correlating a request's log lines,
// reusing a caller-supplied X-Request-ID when present.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader("X-Request-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(traceIDKey, traceID)
		c.Writer.Header().Set("X-Request-ID", traceID)
		c.Next()
	}
}

// TraceID reads the trace_id set by TraceMiddleware.
func TraceID(c *gin.Context) string {
	if v, ok := c.Get(traceIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// AuthMiddleware enforces an exact-string match on the X-API-KEY header
// against the configured shared secret. No per-user accounts.
func AuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" || c.GetHeader("X-API-KEY") != apiKey {
			restapi.Failed(c, errno.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}
