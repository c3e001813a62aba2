// internal/app/router.go
package app

import (
	accessHandler "meterd-service/internal/handlers/access"
	billingHandler "meterd-service/internal/handlers/billing"
	principalHandler "meterd-service/internal/handlers/principal"
	subscriptionHandler "meterd-service/internal/handlers/subscription"
	usageHandler "meterd-service/internal/handlers/usage"
	wsHandler "meterd-service/internal/handlers/websocket"
	"meterd-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	AccessHandler       *accessHandler.AccessHandler
	UsageHandler        *usageHandler.UsageHandler
	SubscriptionHandler *subscriptionHandler.SubscriptionHandler
	ChargeHandler       *billingHandler.ChargeHandler
	PrincipalHandler    *principalHandler.PrincipalHandler
	WSHandler           *wsHandler.WebSocketHandler
	AuthMiddleware      *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== WebSocket ====================
	// Token is read from the query string since browsers cannot set
	// headers on WebSocket upgrades.
	r.GET("/ws", h.AuthMiddleware.Auth(), h.WSHandler.HandleConnection)

	// ==================== Access Checks ====================
	access := api.Group("/access")
	access.Use(h.AuthMiddleware.Auth())
	{
		access.GET("/sections/:section", h.AccessHandler.CanAccessSection)
		access.POST("/check", h.AccessHandler.Check)
	}

	// ==================== Usage Metering ====================
	usage := api.Group("/usage")
	usage.Use(h.AuthMiddleware.Auth())
	{
		usage.GET("", h.UsageHandler.GetUsage)
		usage.POST("/authorize", h.UsageHandler.Authorize)
	}

	// ==================== Subscription & Plans ====================
	subscription := api.Group("/subscription")
	subscription.Use(h.AuthMiddleware.Auth())
	{
		subscription.GET("", h.SubscriptionHandler.GetSubscription)
		subscription.GET("/plans", h.SubscriptionHandler.ListPlans)
		subscription.POST("/change-plan", h.SubscriptionHandler.ChangePlan)
		subscription.DELETE("/pending-downgrade", h.SubscriptionHandler.CancelPendingDowngrade)
	}

	// ==================== Overage Charges ====================
	charges := api.Group("/charges")
	charges.Use(h.AuthMiddleware.Auth())
	{
		charges.GET("", h.ChargeHandler.ListCharges)
		charges.GET("/summary", h.ChargeHandler.GetSummary)
		charges.GET("/dunning-rate", h.ChargeHandler.GetDunningRate)
		charges.PUT("/:reference/processed", h.ChargeHandler.MarkProcessed)
		charges.PUT("/:reference/failed", h.ChargeHandler.MarkFailed)
		charges.PUT("/:reference/recovered", h.ChargeHandler.MarkRecovered)
	}

	// ==================== Admin Principals ====================
	principals := api.Group("/admin/principals")
	principals.Use(h.AuthMiddleware.Auth())
	{
		principals.GET("", h.PrincipalHandler.List)
		principals.POST("", h.PrincipalHandler.Create)
		principals.PUT("/:id/role", h.PrincipalHandler.ChangeRole)
		principals.POST("/:id/permissions", h.PrincipalHandler.GrantPermission)
		principals.DELETE("/:id/permissions", h.PrincipalHandler.RevokePermission)
		principals.DELETE("/:id", h.PrincipalHandler.Deactivate)
	}
}
