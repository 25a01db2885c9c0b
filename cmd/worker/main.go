package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vtupay/wallet-engine/internal/config"
	"github.com/vtupay/wallet-engine/internal/database"
	"github.com/vtupay/wallet-engine/internal/mailer"
	"github.com/vtupay/wallet-engine/internal/provider"
	"github.com/vtupay/wallet-engine/internal/queue"
	"github.com/vtupay/wallet-engine/internal/refund"
	"github.com/vtupay/wallet-engine/internal/store"
	"github.com/vtupay/wallet-engine/internal/worker"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Info().Msg("VTU wallet engine worker starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

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

	repo := store.NewPostgresRepository(db.Pool)
	refunds := refund.NewEngine(repo)
	vendor := provider.NewHTTPClient(provider.ClientConfig{
		BaseURL:   cfg.VendorBaseURL,
		APIKey:    cfg.VendorAPIKey,
		SecretKey: cfg.VendorSecretKey,
		Timeout:   cfg.VendorTimeout,
	})

	processor := worker.NewProcessor(repo, refunds, vendor, mailer.LogMailer{}, cfg.ReconcileAfter, cfg.ReconcileBatch)
	q.Mux.HandleFunc(worker.TypeReconcilePending, processor.ProcessReconcile)
	q.Mux.HandleFunc(worker.TypeEmailReceipt, processor.ProcessEmailReceipt)

	redisOpt, serverCfg, err := queue.ServerConfig(cfg.RedisURL, cfg.WorkerConcurrency)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create worker config")
	}
	asynqServer := asynq.NewServer(redisOpt, serverCfg)

	// Periodically sweep stale pending transactions.
	stopTicker := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.ReconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := q.Client.Enqueue(worker.NewReconcileTask(), asynq.Queue("critical")); err != nil {
					log.Warn().Err(err).Msg("failed to enqueue reconcile sweep")
				}
			case <-stopTicker:
				return
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("shutting down worker...")
		close(stopTicker)
		asynqServer.Shutdown()
	}()

	log.Info().Msg("worker started, processing tasks...")
	if err := asynqServer.Run(q.Mux); err != nil {
		log.Fatal().Err(err).Msg("worker failed")
	}

	log.Info().Msg("worker shutdown complete")
}
