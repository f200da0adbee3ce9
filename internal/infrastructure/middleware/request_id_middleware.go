package middleware

import (
	"context"

	"soundradius/pkg/logger"
	"soundradius/pkg/utils"

	"github.com/gin-gonic/gin"
)

// RequestIDMiddleware tags every request with an ID, honoring one supplied by
// the client. The ID flows through the request context for log correlation.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = utils.GenerateRequestID()
		}

		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}
