package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vtupay/wallet-engine/internal/config"
	"github.com/vtupay/wallet-engine/internal/contacts"
	"github.com/vtupay/wallet-engine/internal/database"
	"github.com/vtupay/wallet-engine/internal/funding"
	"github.com/vtupay/wallet-engine/internal/handlers"
	"github.com/vtupay/wallet-engine/internal/mailer"
	"github.com/vtupay/wallet-engine/internal/pin"
	"github.com/vtupay/wallet-engine/internal/provider"
	"github.com/vtupay/wallet-engine/internal/purchase"
	"github.com/vtupay/wallet-engine/internal/queue"
	"github.com/vtupay/wallet-engine/internal/refund"
	"github.com/vtupay/wallet-engine/internal/server"
	"github.com/vtupay/wallet-engine/internal/store"
	"github.com/vtupay/wallet-engine/internal/wallet"
	"github.com/vtupay/wallet-engine/internal/worker"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Info().Msg("VTU wallet engine starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	cfg.LogSafeConfig()

	ctx := context.Background()

	db, err := database.NewDatabase(ctx, cfg.DatabaseURL, cfg.DBMinConns, cfg.DBMaxConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	q, err := queue.NewQueue(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize queue")
	}
	defer q.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse redis URL")
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	// Core services
	repo := store.NewPostgresRepository(db.Pool)
	guard := wallet.NewGuard(repo)
	pins := pin.NewService(repo)
	vendor := provider.NewHTTPClient(provider.ClientConfig{
		BaseURL:   cfg.VendorBaseURL,
		APIKey:    cfg.VendorAPIKey,
		SecretKey: cfg.VendorSecretKey,
		Timeout:   cfg.VendorTimeout,
	})
	contactCache := contacts.NewCache(rdb)
	receipts := worker.NewDispatcher(q.Client)

	purchases := purchase.NewService(repo, guard, pins, vendor, contactCache, receipts, cfg.VendorTimeout)
	fundingHandler := funding.NewHandler(repo, guard, []byte(cfg.WebhookSecret), funding.FeePolicy{
		Percent: cfg.FundingFeePercent,
		Min:     cfg.FundingFeeMin,
		Max:     cfg.FundingFeeMax,
	})
	refunds := refund.NewEngine(repo)

	// Background processing runs in-process alongside the API.
	processor := worker.NewProcessor(repo, refunds, vendor, mailer.LogMailer{}, cfg.ReconcileAfter, cfg.ReconcileBatch)
	q.Mux.HandleFunc(worker.TypeReconcilePending, processor.ProcessReconcile)
	q.Mux.HandleFunc(worker.TypeEmailReceipt, processor.ProcessEmailReceipt)

	redisOpt, serverCfg, err := queue.ServerConfig(cfg.RedisURL, cfg.WorkerConcurrency)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create worker config")
	}
	asynqServer := asynq.NewServer(redisOpt, serverCfg)

	go func() {
		log.Info().Msg("starting background worker...")
		if err := asynqServer.Run(q.Mux); err != nil {
			log.Fatal().Err(err).Msg("background worker failed")
		}
	}()

	httpHandlers := handlers.NewHandler(db, purchases, fundingHandler, refunds, pins, guard, contactCache)
	httpServer := server.NewServer(cfg, httpHandlers)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down gracefully...")

	asynqServer.Shutdown()
	time.Sleep(2 * time.Second)

	log.Info().Msg("shutdown complete")
}
