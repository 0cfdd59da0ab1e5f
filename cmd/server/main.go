package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/ridehub/backend/internal/metrics"
	"github.com/anonto42/ridehub/backend/internal/realtime"
	"github.com/anonto42/ridehub/backend/internal/router"
	"github.com/anonto42/ridehub/backend/pkg/config"
	"github.com/anonto42/ridehub/backend/pkg/firebase"
	"github.com/anonto42/ridehub/backend/pkg/logger"
	"github.com/anonto42/ridehub/backend/pkg/push"
	"github.com/anonto42/ridehub/backend/pkg/worker"
	"github.com/anonto42/ridehub/backend/validators"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	// Initialize database connections
	db, err := config.InitDB(cfg, zl)
	if err != nil {
		zl.Fatal("Failed to initialize databases", zap.Error(err))
	}
	defer db.CloseDB()

	// Firebase is optional: without credentials only local JWTs are accepted
	// and push delivery is disabled.
	var gateway push.Gateway = push.NewNoopGateway(zl.Named("push"))
	deps := router.Dependencies{Config: cfg, Log: zl}
	if app, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath, zl); err != nil {
		zl.Warn("Firebase disabled", zap.Error(err))
	} else {
		deps.FirebaseAuth = app.AuthClient
		gateway = push.NewFCMGateway(app.MessagingClient, cfg.PushTimeout, zl.Named("push"))
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			zl.Fatal("Invalid REDIS_URL", zap.Error(err))
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			zl.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer rdb.Close()
		zl.Info("Realtime relay using Redis")
	}

	hub := realtime.NewHub()
	broker := realtime.NewBroker(hub, rdb, zl.Named("broker"))

	pool, err := worker.NewPool(ctx, cfg.WorkerPoolSize, zl.Named("worker"))
	if err != nil {
		zl.Fatal("Failed to start worker pool", zap.Error(err))
	}
	metrics.RegisterWorkerPool(pool.Metrics)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	validator := validators.NewValidator()
	e.Validator = validator
	config.SetupMiddleware(e, zl)

	deps.Postgres = db.Postgres
	deps.Mongo = db.Mongo.Database(cfg.MongoDatabase)
	deps.Broker = broker
	deps.Push = gateway
	deps.Pool = pool
	deps.Validator = validator
	if err := router.SetupRoutes(e, deps); err != nil {
		zl.Fatal("Failed to set up routes", zap.Error(err))
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zl.Info("HTTP server listening", zap.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		zl.Info("Metrics server listening", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return broker.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Hijacked websocket connections are not tracked by the HTTP server.
		hub.CloseAll()
		if err := e.Shutdown(shutdownCtx); err != nil {
			zl.Error("HTTP server shutdown failed", zap.Error(err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			zl.Error("Metrics server shutdown failed", zap.Error(err))
		}
		pool.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		zl.Error("Server exited with error", zap.Error(err))
	}
}
