package middleware

import (
	"github.com/gin-gonic/gin"
)

// userIdHeaders are checked in order; the first non-empty value wins.
var userIdHeaders = []string{
	"X-VEILMAIL-USER-ID",
	"X-User-Id",
}

func UserIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := ""
		for _, header := range userIdHeaders {
			if value := c.GetHeader(header); value != "" {
				userId = value
				break
			}
		}

		// Store in gin context for later use
		c.Set("UserId", userId)
		c.Next()
	}
}
