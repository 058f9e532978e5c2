// Command sweeper reconciles stale pending orders with the payment gateway.
// It runs once and exits; schedule it with cron or a Kubernetes CronJob.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/config"
	"github.com/iliyamo/storefront-api/internal/database"
	"github.com/iliyamo/storefront-api/internal/gateway/yookassa"
	"github.com/iliyamo/storefront-api/internal/logging"
	"github.com/iliyamo/storefront-api/internal/queue"
	"github.com/iliyamo/storefront-api/internal/repository"
	"github.com/iliyamo/storefront-api/internal/service"
)

func main() {
	limit := flag.Int("limit", 500, "max orders handled per run")
	flag.Parse()

	cfg := config.Load()
	logger, err := logging.New(cfg.IsProduction())
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.DSN(cfg.DSNParts()))
	if err != nil {
		logger.Fatal("database open", zap.Error(err))
	}
	defer db.Close()

	payments := service.NewPaymentService(
		repository.NewUserRepo(db),
		repository.NewCartRepo(db),
		repository.NewOrderRepo(db),
		yookassa.New(cfg.Payment.BaseURL, cfg.Payment.ShopID, cfg.Payment.SecretKey),
		queue.NewPublisher(cfg.AMQPURL, logger.Named("publisher")),
		service.PaymentOptions{ClientURL: cfg.ClientURL, Currency: cfg.Payment.Currency, VerifyWebhooks: true},
		logger.Named("sweeper"),
	)

	report, err := payments.ReconcilePending(ctx, cfg.Payment.PendingMaxAge, *limit)
	logger.Info("sweep finished",
		zap.Duration("max_age", cfg.Payment.PendingMaxAge),
		zap.Int("scanned", report.Scanned),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("canceled", report.Canceled),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("failed", report.Failed),
	)
	if err != nil {
		logger.Error("sweep aborted", zap.Error(err))
		os.Exit(1)
	}
}
