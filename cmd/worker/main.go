package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tg-adescrow/backend/internal/config"
	"github.com/tg-adescrow/backend/internal/crypto"
	"github.com/tg-adescrow/backend/internal/db"
	"github.com/tg-adescrow/backend/internal/events"
	"github.com/tg-adescrow/backend/internal/notify"
	"github.com/tg-adescrow/backend/internal/repositories"
	"github.com/tg-adescrow/backend/internal/scheduler"
	"github.com/tg-adescrow/backend/internal/services"
	"github.com/tg-adescrow/backend/internal/stats"
	"github.com/tg-adescrow/backend/internal/telegram"
	"github.com/tg-adescrow/backend/internal/ton"
	"go.uber.org/zap"
)

// The worker posts scheduled ads and settles escrows, so unlike the API it
// cannot run without the bot and the chain.
func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	if cfg.BotToken == "" {
		log.Fatal("BOT_TOKEN is required for the worker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	cipher, err := crypto.LoadCipher(cfg.EscrowSecretKey, cfg.IsMainnet(), log)
	if err != nil {
		log.Fatal("failed to load escrow key", zap.Error(err))
	}

	chain, err := ton.Connect(ctx, cfg, cipher, log)
	if err != nil {
		log.Fatal("failed to connect to chain", zap.Error(err))
	}

	probe := stats.NewParser(10000, 2, log)
	messenger := telegram.NewClient(cfg.BotToken, probe, log)

	dealRepo := repositories.NewDealRepo(pool)
	channelRepo := repositories.NewChannelRepo(pool)
	campaignRepo := repositories.NewCampaignRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	postRepo := repositories.NewPostRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	publisher := events.NewRedisPublisher(rdb, log)
	notifier := notify.NewNotifier(dealRepo, messenger, publisher, log)

	dealService := services.NewDealService(dealRepo, channelRepo, campaignRepo, postRepo, auditRepo, notifier, publisher, log)
	escrowService := services.NewEscrowService(escrowRepo, dealRepo, channelRepo, postRepo, chain, dealService, publisher, log)

	worker := scheduler.New(postRepo, dealRepo, dealService, escrowService, messenger,
		cfg.PostTickInterval, cfg.VerifyTickInterval, log)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	worker.Run(ctx)
}
