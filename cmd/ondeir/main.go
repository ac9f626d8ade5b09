// Package main запускает HTTP-сервер сервиса доставки Ondeir.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/ondeir/internal/cart"
	"github.com/mmeshcher/ondeir/internal/config"
	"github.com/mmeshcher/ondeir/internal/fulfillment"
	"github.com/mmeshcher/ondeir/internal/handler"
	"github.com/mmeshcher/ondeir/internal/middleware"
	"github.com/mmeshcher/ondeir/internal/realtime"
	"github.com/mmeshcher/ondeir/internal/repository"
	"github.com/mmeshcher/ondeir/internal/service"
)

// cartTTL задаёт срок хранения брошенной корзины в Redis.
const cartTTL = 7 * 24 * time.Hour

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	carts, closeCarts, err := newCartStore(cfg)
	if err != nil {
		sugar.Fatalw("cart store initialization error", "error", err.Error())
	}
	defer closeCarts()

	hub := realtime.NewHub(repo.Pool(), logger)

	var fulfillmentClient *fulfillment.Client
	if cfg.FulfillmentSystemAddress != "" {
		fulfillmentClient = fulfillment.NewClient(cfg.FulfillmentSystemAddress)
	} else {
		sugar.Warn("fulfillment system address is not set, order statuses will not advance")
	}

	svc := service.NewService(repo, carts, hub, fulfillmentClient, logger)
	defer svc.Close()

	if cfg.AuthSecret == "" {
		sugar.Warn("auth secret is not set, sessions will not survive a restart")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Лента изменений заказов для живого отслеживания
	g.Go(func() error {
		return hub.Run(ctx)
	})

	svc.StartFulfillmentUpdates(ctx, cfg.FulfillmentPollInterval)

	g.Go(func() error {
		sugar.Infow("starting ondeir server", "addr", cfg.RunAddress, "cartStore", cfg.CartStore)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине).
	// Остановка ленты закрывает подписки, и открытые потоки событий завершаются сами.
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newCartStore(cfg *config.Config) (cart.Store, func(), error) {
	if cfg.CartStore != config.CartStoreRedis {
		return cart.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	return cart.NewRedisStore(client, cartTTL), func() { _ = client.Close() }, nil
}
