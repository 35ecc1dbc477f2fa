package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/tg-adescrow/backend/internal/config"
	"github.com/tg-adescrow/backend/internal/crypto"
	"github.com/tg-adescrow/backend/internal/db"
	"github.com/tg-adescrow/backend/internal/events"
	apphttp "github.com/tg-adescrow/backend/internal/http"
	"github.com/tg-adescrow/backend/internal/http/handlers"
	"github.com/tg-adescrow/backend/internal/notify"
	"github.com/tg-adescrow/backend/internal/permissions"
	"github.com/tg-adescrow/backend/internal/repositories"
	"github.com/tg-adescrow/backend/internal/services"
	"github.com/tg-adescrow/backend/internal/stats"
	"github.com/tg-adescrow/backend/internal/telegram"
	"github.com/tg-adescrow/backend/internal/ton"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Mnemonic custody key
	cipher, err := crypto.LoadCipher(cfg.EscrowSecretKey, cfg.IsMainnet(), log)
	if err != nil {
		log.Fatal("failed to load escrow key", zap.Error(err))
	}

	// Optional capabilities: the API serves without them, their endpoints
	// answer 503.
	var chain *ton.Client
	if c, err := ton.Connect(ctx, cfg, cipher, log); err != nil {
		log.Warn("chain connection failed, escrow endpoints disabled", zap.Error(err))
	} else {
		chain = c
	}

	var messenger *telegram.Client
	if cfg.BotToken != "" {
		probe := stats.NewParser(10000, 2, log)
		messenger = telegram.NewClient(cfg.BotToken, probe, log)
	}

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	channelRepo := repositories.NewChannelRepo(pool)
	campaignRepo := repositories.NewCampaignRepo(pool)
	dealRepo := repositories.NewDealRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	postRepo := repositories.NewPostRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	perms := permissions.NewService(channelRepo, messenger, log)
	var notifier services.DealNotifier
	if messenger != nil {
		notifier = notify.NewNotifier(dealRepo, messenger, publisher, log)
	}
	dealService := services.NewDealService(dealRepo, channelRepo, campaignRepo, postRepo, auditRepo, notifier, publisher, log)
	var escrowService *services.EscrowService
	if chain != nil {
		escrowService = services.NewEscrowService(escrowRepo, dealRepo, channelRepo, postRepo, chain, dealService, publisher, log)
	}

	// Handlers
	healthHandler := handlers.NewHealthHandler(chain != nil, messenger != nil)
	authHandler := handlers.NewAuthHandler(userRepo, cfg, log)
	channelHandler := handlers.NewChannelHandler(channelRepo, userRepo, perms, messenger, log)
	campaignHandler := handlers.NewCampaignHandler(campaignRepo, log)
	dealHandler := handlers.NewDealHandler(dealService, escrowService, perms, cfg.HoldHoursDefault, log)
	escrowHandler := handlers.NewEscrowHandler(escrowService, log)
	postHandler := handlers.NewPostHandler(dealService, messenger, log)
	permissionHandler := handlers.NewPermissionHandler(perms, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	wsHub.Start(ctx)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb,
		healthHandler, authHandler, channelHandler, campaignHandler,
		dealHandler, escrowHandler, postHandler, permissionHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
