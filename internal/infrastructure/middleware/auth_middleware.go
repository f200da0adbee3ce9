package middleware

import (
	"net/http"
	"strings"

	"soundradius/internal/core/services"

	"github.com/gin-gonic/gin"
)

// JoinTokenMiddleware authenticates requests with a bearer join token and
// stores the validated identity in the gin context.
func JoinTokenMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateJoinToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Set("participant_id", claims.ParticipantID)
		c.Set("session_id", claims.SessionID)
		c.Set("display_name", claims.DisplayName)
		c.Next()
	}
}
