package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/tg-adescrow/backend/internal/config"
	"github.com/tg-adescrow/backend/internal/http/handlers"
	"github.com/tg-adescrow/backend/internal/middleware"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	healthHandler *handlers.HealthHandler,
	authHandler *handlers.AuthHandler,
	channelHandler *handlers.ChannelHandler,
	campaignHandler *handlers.CampaignHandler,
	dealHandler *handlers.DealHandler,
	escrowHandler *handlers.EscrowHandler,
	postHandler *handlers.PostHandler,
	permissionHandler *handlers.PermissionHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	app.Get("/health", healthHandler.Health)

	api := app.Group("/api")

	// Auth (public)
	api.Post("/auth", authHandler.TelegramAuth)

	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Users
	protected.Post("/user/wallet", authHandler.SetWallet)

	// Channels
	protected.Get("/channels", channelHandler.ListChannels)
	protected.Post("/channels", channelHandler.CreateChannel)
	protected.Post("/channel/:id/verify", channelHandler.VerifyChannel)
	protected.Get("/channel/:id/admins", channelHandler.GetAdmins)
	protected.Post("/channel/:id/admins", channelHandler.AddAdmin)
	protected.Delete("/channel/:id/admins/:userId", channelHandler.RemoveAdmin)
	protected.Post("/channel/:id/wallet", channelHandler.SetWallet)

	// Campaigns
	protected.Post("/campaign/create", campaignHandler.CreateCampaign)
	protected.Get("/campaigns", campaignHandler.ListCampaigns)

	// Deals
	protected.Get("/deals", dealHandler.ListDeals)
	protected.Post("/deals", dealHandler.CreateDeal)
	protected.Post("/deal/create", dealHandler.CreateDeal)
	protected.Get("/deal/:id", dealHandler.GetDeal)
	protected.Post("/deal/:id/status", dealHandler.UpdateStatus)
	protected.Post("/deal/:id/transition", dealHandler.UpdateStatus)
	protected.Post("/deal/:id/accept", dealHandler.AcceptDeal)
	protected.Post("/deal/:id/post", dealHandler.PostDeal)
	protected.Post("/deal/:id/release", dealHandler.ReleaseDeal)

	// Escrow
	protected.Post("/deal/:id/escrow/create", escrowHandler.CreateWallet)
	protected.Get("/deal/:id/escrow/status", escrowHandler.GetStatus)
	protected.Post("/deal/:id/escrow/status", escrowHandler.GetStatus)
	protected.Post("/deal/:id/escrow/verify", escrowHandler.VerifyDeposit)
	protected.Post("/deal/:id/escrow/release", escrowHandler.Release)
	protected.Post("/deal/:id/escrow/refund", escrowHandler.Refund)
	protected.Get("/deal/:id/escrow/transactions", escrowHandler.Transactions)

	// Scheduled posts
	protected.Post("/deal/:id/post/schedule", postHandler.Schedule)
	protected.Post("/deal/:id/post/now", postHandler.Now)
	protected.Post("/deal/:id/post/cancel", postHandler.Cancel)
	protected.Get("/deal/:id/post/verify", postHandler.Verify)

	// Permissions
	protected.Post("/permission/check", permissionHandler.Check)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
