package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-platform/internal/config"
	"github.com/ignatzorin/escrow-platform/internal/http/handlers"
	"github.com/ignatzorin/escrow-platform/internal/http/middleware"
	"github.com/ignatzorin/escrow-platform/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	escrowHandler *handlers.EscrowHandler,
	refundHandler *handlers.RefundHandler,
	adminHandler *handlers.AdminHandler,
	notificationHandler *handlers.NotificationHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	seedHandler *handlers.SeedHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	if seedHandler != nil && cfg.Env == "development" {
		api.POST("/seed", seedHandler.Seed)
		api.GET("/seed", seedHandler.Seed)
	}

	authGroup := api.Group("/auth")
	authRateLimit := middleware.RateLimitMiddleware(5, cfg.RateLimitPeriod)
	authGroup.Use(authRateLimit)
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
	}

	// Публичные маршруты
	api.GET("/ws", wsHandler.Handle)
	api.GET("/admin", adminHandler.GetAdmin)
	api.GET("/admin/fee", adminHandler.GetFee)

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.POST("/admin/initialize", adminHandler.Initialize)
		protected.POST("/admin/transfer", adminHandler.Transfer)
		protected.POST("/admin/fee", adminHandler.SetFee)

		protected.GET("/notifications", notificationHandler.List)
		protected.GET("/notifications/unread/count", notificationHandler.CountUnread)
		protected.PUT("/notifications/:id/read", notificationHandler.MarkAsRead)

		protected.POST("/escrows", escrowHandler.Create)
		protected.POST("/escrows/bulk", escrowHandler.CreateBulk)
		protected.GET("/escrows", escrowHandler.List)
		protected.GET("/escrows/:id", middleware.IDValidator("id"), escrowHandler.Get)
		protected.POST("/escrows/:id/fund", middleware.IDValidator("id"), escrowHandler.Fund)
		protected.POST("/escrows/:id/release", middleware.IDValidator("id"), escrowHandler.Release)
		protected.POST("/escrows/:id/refund", middleware.IDValidator("id"), escrowHandler.Refund)
		protected.POST("/escrows/:id/status", middleware.IDValidator("id"), escrowHandler.TransitionStatus)
		protected.POST("/escrows/:id/resolve", middleware.IDValidator("id"), escrowHandler.ResolveDispute)
		protected.GET("/escrows/:id/refunds", middleware.IDValidator("id"), escrowHandler.ListRefunds)
		protected.GET("/escrows/:id/refund-history", middleware.IDValidator("id"), escrowHandler.RefundHistory)
		protected.POST("/escrows/:id/refund-requests", middleware.IDValidator("id"), refundHandler.Submit)

		protected.GET("/refund-requests/:id", middleware.IDValidator("id"), refundHandler.Get)
		protected.POST("/refund-requests/:id/approve", middleware.IDValidator("id"), refundHandler.Approve)
		protected.POST("/refund-requests/:id/reject", middleware.IDValidator("id"), refundHandler.Reject)
		protected.POST("/refund-requests/:id/process", middleware.IDValidator("id"), refundHandler.Process)
		protected.POST("/refund-requests/:id/cancel", middleware.IDValidator("id"), refundHandler.Cancel)
		protected.POST("/refund-requests/:id/evidence", middleware.IDValidator("id"), refundHandler.UploadEvidence)

		protected.GET("/refund-history", refundHandler.HistoryAll)
	}

	return r
}
