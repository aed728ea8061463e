// Package routes defines the HTTP routes for the support service.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/brightdesk/support-service/internal/api/handlers"
	"github.com/brightdesk/support-service/internal/api/middleware"
)

// Config holds the dependencies for setting up routes.
type Config struct {
	HealthHandler        *handlers.HealthHandler
	MessagesHandler      *handlers.MessagesHandler
	ConversationsHandler *handlers.ConversationsHandler
	AuthMiddleware       *middleware.AuthMiddleware
	TenantMiddleware     *middleware.TenantMiddleware
}

// Setup configures all routes on the Gin engine.
func Setup(r *gin.Engine, cfg *Config) {
	// API v1 routes - all routes under /api/v1/support-service
	v1 := r.Group("/api/v1/support-service")
	{
		// Health check routes (no auth required)
		v1.GET("/health", cfg.HealthHandler.Health)
		v1.GET("/ready", cfg.HealthHandler.Ready)
		v1.GET("/live", cfg.HealthHandler.Live)

		// Apply auth middleware to protected API routes
		protected := v1.Group("")
		protected.Use(cfg.AuthMiddleware.Authenticate())

		// Tenant-scoped routes
		tenants := protected.Group("/tenants/:tenantId")
		tenants.Use(cfg.TenantMiddleware.ExtractTenant())
		{
			// Customer entry point: first contact creates the conversation
			customers := tenants.Group("/customers/:customerId")
			{
				customers.POST("/messages", cfg.MessagesHandler.SendCustomerMessage)
			}

			// Conversation lifecycle and message log
			conversations := tenants.Group("/conversations/:conversationId")
			{
				conversations.GET("", cfg.ConversationsHandler.GetConversation)
				conversations.GET("/stream", cfg.ConversationsHandler.Stream)

				conversations.POST("/accept", cfg.ConversationsHandler.Accept)
				conversations.POST("/handback-queue", cfg.ConversationsHandler.HandBackToQueue)
				conversations.POST("/handback-ai", cfg.ConversationsHandler.HandBackToAI)
				conversations.POST("/resolve", cfg.ConversationsHandler.Resolve)

				conversations.GET("/messages", cfg.MessagesHandler.GetMessages)
				conversations.POST("/messages", cfg.MessagesHandler.SendAgentMessage)
				conversations.POST("/messages/:messageId/read", cfg.MessagesHandler.MarkRead)
			}
		}
	}
}

// SetupWithMiddleware sets up routes with common middleware.
func SetupWithMiddleware(r *gin.Engine, cfg *Config, loggingMw *middleware.LoggingMiddleware, errorMw *middleware.ErrorMiddleware) {
	// Apply global middleware
	r.Use(loggingMw.Logger())
	r.Use(errorMw.Recovery())
	r.Use(gin.Recovery())

	// Setup routes
	Setup(r, cfg)
}
