package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/veilmail/relay/api/handlers"
	"github.com/veilmail/relay/api/middleware"
	"github.com/veilmail/relay/internal/repository"
	"github.com/veilmail/relay/internal/tracing"
	"github.com/veilmail/relay/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, s *services.Services, repos *repository.Repositories, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	// setup handlers
	apiHandlers := handlers.InitHandlers(s, repos)

	// Health check endpoint (no custom context needed)
	r.GET("/health", handlers.HealthCheck)

	// Inbound webhooks carry provider-authenticated payloads, not API keys
	webhooks := r.Group("/webhooks")
	webhooks.Use(middleware.CustomContextMiddleware("relay-webhook"))
	webhooks.Use(middleware.TracingMiddleware())
	{
		webhooks.POST("/inbound/:provider", apiHandlers.Webhooks.Inbound())
	}

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-VEILMAIL-API-KEY",
		ValidAPIKey: apikey,
	})

	// API group with version and custom context
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.UserIdMiddleware())
	api.Use(middleware.CustomContextMiddleware("relay-api"))
	api.Use(middleware.TracingMiddleware())
	{
		aliases := api.Group("/aliases")
		{
			aliases.POST("", apiHandlers.Aliases.Create())
			aliases.GET("", apiHandlers.Aliases.List())
			aliases.GET("/:id", apiHandlers.Aliases.Get())
			aliases.POST("/:id/kill", apiHandlers.Aliases.Kill())
			aliases.POST("/:id/replace", apiHandlers.Aliases.Replace())
			aliases.GET("/:id/emails", apiHandlers.Aliases.ListEmails())
			aliases.POST("/:id/emails/:emailId/read", apiHandlers.Aliases.MarkEmailRead())
			aliases.GET("/:id/events", apiHandlers.Aliases.ListEvents())
		}

		api.POST("/sweep", apiHandlers.Sweep.Trigger())
	}
}
