package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_cart/cart-order-service/internal/consumer"
	"github.com/fjod/go_cart/cart-order-service/internal/health"
	carthttp "github.com/fjod/go_cart/cart-order-service/internal/http"
	"github.com/fjod/go_cart/cart-order-service/internal/product"
	"github.com/fjod/go_cart/cart-order-service/internal/publisher"
	"github.com/fjod/go_cart/cart-order-service/internal/repository"
	"github.com/fjod/go_cart/cart-order-service/internal/service"
	"github.com/fjod/go_cart/cart-order-service/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const serviceName = "cart-order-service"

func main() {
	if err := run(); err != nil {
		slog.Error("cart-order-service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	telemetry.InitLogger(os.Stdout, cfg.LogLevel)
	slog.Info("cart-order-service starting...")

	ctx := context.Background()
	shutdownTracer, err := telemetry.SetupTracer(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	var wg sync.WaitGroup

	// Orders database
	repo, err := repository.NewRepository(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(&cfg.DB); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("database migrations completed")

	// Product catalog
	catalog, err := product.NewSQLiteStore(cfg.CatalogDBPath)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer catalog.Close()

	if err := catalog.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		return fmt.Errorf("failed to run catalog migrations: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// the cached store falls through to the catalog while redis is down
		slog.Warn("redis ping failed", "addr", cfg.RedisAddr, "error", err)
	} else {
		slog.Info("redis ping succeeded", "addr", cfg.RedisAddr)
	}

	cachedCatalog := product.NewCachedStore(catalog, redisClient)
	products := product.NewBreakerStore(cachedCatalog, product.DefaultBreakerSettings())
	cartService := service.NewCartService(repo, products)

	// Health
	healthServer := grpchealth.NewServer()
	checker := health.NewChecker(healthServer, map[string]health.Pinger{
		"postgres": repo,
		"redis":    health.RedisPinger(redisClient),
	})
	healthCtx, healthCancel := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		checker.Run(healthCtx)
	}()

	// Outbox publisher
	poller := publisher.NewOutboxPoller(repo, cfg.KafkaBrokers...)
	pollerCtx, pollerCancel := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(pollerCtx)
	}()

	// Catalog change consumer
	productConsumer := consumer.NewConsumer(cachedCatalog, cfg.KafkaBrokers...)
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		productConsumer.Run(consumerCtx)
	}()

	// gRPC admin server
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	go func() {
		slog.Info("grpc server listening", "port", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("grpc server failed", "error", err)
		}
	}()

	// HTTP API
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      carthttp.NewRouter(cartService, checker, cfg.RequestTimeout),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		slog.Error("http server failed", "error", err)
	}

	slog.Info("shutting down cart-order-service...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server forced to shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	pollerCancel()
	consumerCancel()
	healthCancel()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		slog.Info("background workers stopped cleanly")
	case <-shutdownCtx.Done():
		slog.Warn("background workers didn't stop in time")
	}

	if err := poller.Close(); err != nil {
		slog.Warn("failed to close kafka writer", "error", err)
	}
	productConsumer.Close()
	slog.Info("cart-order-service stopped")
	return nil
}
