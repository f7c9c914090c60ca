package middleware

import (
	"github.com/gin-gonic/gin"

	"damdam/internal/pkg/id"
)

const requestIDHeader = "X-Request-ID"

// RequestID attaches a request id to every request, honoring the one
// sent by the client when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = id.New()
		}

		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)

		c.Next()
	}
}
