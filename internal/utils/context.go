package utils

import (
	"context"

	"github.com/gin-gonic/gin"
)

// CustomContext carries request provenance through the processing pipeline.
// The audit ledger reads IP/UserAgent from here.
type CustomContext struct {
	AppSource string
	UserID    string
	IP        string
	UserAgent string
}

type contextKey string

var customContextKey contextKey = "CUSTOM_CONTEXT"

func WithCustomContext(ctx context.Context, customContext *CustomContext) context.Context {
	return context.WithValue(ctx, customContextKey, customContext)
}

func WithCustomContextFromGinRequest(c *gin.Context, appSource string) context.Context {
	customContext := &CustomContext{
		AppSource: appSource,
		UserID:    c.GetString("UserId"),
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	return WithCustomContext(c.Request.Context(), customContext)
}

func GetContext(ctx context.Context) *CustomContext {
	customContext, ok := ctx.Value(customContextKey).(*CustomContext)
	if !ok {
		return new(CustomContext)
	}
	return customContext
}

func GetAppSourceFromContext(ctx context.Context) string {
	return GetContext(ctx).AppSource
}

func GetUserIDFromContext(ctx context.Context) string {
	return GetContext(ctx).UserID
}

func GetIPFromContext(ctx context.Context) string {
	return GetContext(ctx).IP
}

func GetUserAgentFromContext(ctx context.Context) string {
	return GetContext(ctx).UserAgent
}

func SetUserIDInContext(ctx context.Context, userID string) context.Context {
	customContext := GetContext(ctx)
	customContext.UserID = userID
	return WithCustomContext(ctx, customContext)
}
