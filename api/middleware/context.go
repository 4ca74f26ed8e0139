package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/veilmail/relay/internal/utils"
)

// CustomContextMiddleware attaches request provenance to the context so
// the audit ledger can record who did what from where.
func CustomContextMiddleware(appSource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.WithCustomContextFromGinRequest(c, appSource)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
