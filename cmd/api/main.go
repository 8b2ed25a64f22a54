package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/welth-app/receiptflow/internal/api"
	"github.com/welth-app/receiptflow/internal/config"
	"github.com/welth-app/receiptflow/internal/queue"
	"github.com/welth-app/receiptflow/internal/ratelimit"
	"github.com/welth-app/receiptflow/internal/storage"
	"github.com/welth-app/receiptflow/internal/store"
	"github.com/welth-app/receiptflow/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "receiptflow-api",
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	objectStore, err := storage.NewClient(storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Fatalf("object storage setup failed: %v", err)
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Fatalf("bucket setup failed: %v", err)
	}

	receiptStore, err := store.Open(ctx, cfg.Store.Backend, cfg.Store.PostgresDSN, cfg.Store.SQLitePath)
	if err != nil {
		logger.Fatalf("store setup failed: %v", err)
	}
	defer func() {
		if closer, ok := receiptStore.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				logger.Printf("store close error: %v", err)
			}
		}
	}()

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	var rateLimiter api.RateLimiter
	if cfg.RateLimit.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Printf("redis close error: %v", err)
			}
		}()

		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window, "")
		if err != nil {
			logger.Fatalf("rate limiter setup failed: %v", err)
		}
		rateLimiter = limiter
	}

	app := api.NewServer(logger, queueClient, receiptStore, objectStore, rateLimiter, cfg.API.PresignTTL, cfg.API.MaxUploadBytes, "")

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s store=%s bucket=%s", cfg.API.Addr, cfg.Store.Backend, cfg.Storage.Bucket)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}
