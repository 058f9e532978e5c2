// Command server starts the storefront HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/config"
	"github.com/iliyamo/storefront-api/internal/database"
	"github.com/iliyamo/storefront-api/internal/gateway/yookassa"
	"github.com/iliyamo/storefront-api/internal/handler"
	"github.com/iliyamo/storefront-api/internal/logging"
	"github.com/iliyamo/storefront-api/internal/migrate"
	"github.com/iliyamo/storefront-api/internal/queue"
	"github.com/iliyamo/storefront-api/internal/repository"
	"github.com/iliyamo/storefront-api/internal/router"
	"github.com/iliyamo/storefront-api/internal/service"
	"github.com/iliyamo/storefront-api/internal/storage"
	"github.com/iliyamo/storefront-api/internal/utils"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.IsProduction())
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.DSN(cfg.DSNParts()))
	if err != nil {
		logger.Fatal("database open", zap.Error(err))
	}
	defer db.Close()

	if err := migrate.Up(ctx, db); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	// Redis is optional: without it the rate limiter and cache are pass-through.
	rdb, err := config.NewRedisClient(config.LoadRedisConfig())
	if err != nil {
		logger.Warn("redis unavailable; rate limiting and caching disabled", zap.Error(err))
	} else {
		defer rdb.Close()
	}

	var (
		images  handler.ImageStore
		remover queue.ObjectRemover
	)
	if st, err := storage.New(ctx, cfg.Storage); err != nil {
		logger.Warn("object storage unavailable; image uploads disabled", zap.Error(err))
	} else {
		images, remover = st, st
	}

	// Repositories
	users := repository.NewUserRepo(db)
	sessions := repository.NewSessionRepo(db)
	products := repository.NewProductRepo(db)
	carts := repository.NewCartRepo(db)
	orders := repository.NewOrderRepo(db)

	publisher := queue.NewPublisher(cfg.AMQPURL, logger.Named("publisher"))
	gateway := yookassa.New(cfg.Payment.BaseURL, cfg.Payment.ShopID, cfg.Payment.SecretKey)

	// Services
	signer := utils.NewTokenSigner(cfg.JWTSecret, time.Duration(cfg.AccessTTLMin)*time.Minute)
	refreshTTL := time.Duration(cfg.RefreshTTLDays) * 24 * time.Hour
	authSvc := service.NewAuthService(users, sessions, signer, refreshTTL, cfg.BcryptCost, logger.Named("auth"))
	profileSvc := service.NewProfileService(users, products, publisher, cfg.BcryptCost, logger.Named("profile"))
	paymentSvc := service.NewPaymentService(users, carts, orders, gateway, publisher, service.PaymentOptions{
		ClientURL:      cfg.ClientURL,
		Currency:       cfg.Payment.Currency,
		VerifyWebhooks: cfg.Payment.VerifyWebhooks,
	}, logger.Named("payment"))

	// Handlers
	authH := handler.NewAuthHandler(authSvc, cfg.IsProduction(), logger)
	e := router.New(router.Deps{
		Auth:        authH,
		Profile:     handler.NewProfileHandler(profileSvc, authH, logger),
		Products:    handler.NewProductHandler(products, images, logger),
		Carts:       handler.NewCartHandler(carts, logger),
		Orders:      handler.NewOrderHandler(orders, logger),
		Payments:    handler.NewPaymentHandler(paymentSvc, logger),
		Verifier:    authSvc,
		DB:          db,
		Redis:       rdb,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   config.LoadRateLimitConfig(),
		Cache:       config.LoadCacheConfig(),
		Log:         logger.Named("http"),
	})

	// Background consumer of domain events
	consumer := queue.NewConsumer(cfg.AMQPURL, remover, logger.Named("consumer"))
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("events consumer stopped", zap.Error(err))
		}
	}()

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		errCh <- e.Start(addr)
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
