package response

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKeyRequestID is where the middleware stashes the request ID.
const ContextKeyRequestID = "request_id"

// requestIDHeader is honored inbound so callers can correlate retries,
// and always echoed back on the response.
const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware tags every request with an ID. A caller-supplied
// one is kept; otherwise a fresh UUID is minted.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
