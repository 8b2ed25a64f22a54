package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/welth-app/receiptflow/internal/config"
	"github.com/welth-app/receiptflow/internal/normalize"
	"github.com/welth-app/receiptflow/internal/storage"
	"github.com/welth-app/receiptflow/internal/store"
	"github.com/welth-app/receiptflow/internal/telemetry"
	"github.com/welth-app/receiptflow/internal/webhook"
	"github.com/welth-app/receiptflow/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "receiptflow-worker",
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

	if err := normalize.Startup(); err != nil {
		logger.Fatalf("codec startup failed: %v", err)
	}
	defer normalize.Shutdown()

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

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret:  cfg.Webhook.SigningSecret,
		Timeout:        cfg.Webhook.Timeout,
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		InitialBackoff: cfg.Webhook.InitialBackoff,
		MaxBackoff:     cfg.Webhook.MaxBackoff,
	})

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, objectStore, webhookClient, receiptStore, nil)
	if err != nil {
		logger.Fatalf("worker setup failed: %v", err)
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", srv.MetricsHandler())
	metricsMux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	metricsServer := &http.Server{
		Addr:         cfg.Worker.MetricsAddr,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Printf("metrics listening on %s", cfg.Worker.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server failed: %v", err)
		}
	}()

	logger.Printf(
		"starting worker concurrency=%d max_active_tasks=%d queue=%s redis=%s output_dir=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActiveTasks,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
		cfg.Worker.LocalOutputDir,
	)

	if err := srv.Run(); err != nil {
		logger.Fatalf("worker failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("metrics server shutdown failed: %v", err)
	}
}
