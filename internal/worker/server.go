package worker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/welth-app/receiptflow/internal/config"
	"github.com/welth-app/receiptflow/internal/domain"
	"github.com/welth-app/receiptflow/internal/pipeline"
	"github.com/welth-app/receiptflow/internal/queue"
	"github.com/welth-app/receiptflow/internal/storage"
	"github.com/welth-app/receiptflow/internal/store"
	"github.com/welth-app/receiptflow/internal/webhook"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger          *log.Logger
	server          *asynq.Server
	sem             chan struct{}
	localProcessor  *pipeline.Processor
	objectProcessor *pipeline.Processor
	webhookClient   webhookSender
	receiptStore    store.ReceiptStore
	usageStore      store.UsageStore
	metrics         *metrics
	tracer          trace.Tracer
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	storageClient *storage.Client,
	webhookClient *webhook.Client,
	receiptStore store.ReceiptStore,
	usageStore store.UsageStore,
) (*Server, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}

	localProcessor, err := pipeline.NewLocalProcessor(workerCfg.LocalOutputDir)
	if err != nil {
		return nil, fmt.Errorf("initialize local processor: %w", err)
	}

	objectProcessor, err := pipeline.NewObjectStoreProcessor(
		pipeline.ObjectStoreFetcher{Storage: storageClient},
		pipeline.ObjectStoreEmitter{Storage: storageClient, OutputPrefix: "normalized"},
	)
	if err != nil {
		return nil, fmt.Errorf("initialize object-store processor: %w", err)
	}

	if usageStore == nil {
		if receiptAndUsageStore, ok := receiptStore.(store.UsageStore); ok {
			usageStore = receiptAndUsageStore
		}
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:             make(chan struct{}, max(1, workerCfg.MaxActiveTasks)),
		localProcessor:  localProcessor,
		objectProcessor: objectProcessor,
		receiptStore:    receiptStore,
		usageStore:      usageStore,
		metrics:         newMetrics(),
		tracer:          otel.Tracer("receiptflow/worker"),
	}
	if webhookClient != nil {
		s.webhookClient = webhookClient
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeNormalizeReceipt, s.handleNormalizeReceipt)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleNormalizeReceipt(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.ReceiptStatusFailed

	payload, err := queue.ParseNormalizeReceiptPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.normalize_receipt", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("receipt.id", payload.ReceiptID),
		attribute.String("receipt.source_type", payload.SourceType),
		attribute.Int("receipt.max_dimension", payload.MaxDimension),
	)
	defer span.End()
	defer func() {
		s.metrics.taskDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.tasksTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeTasks.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeTasks.Dec()
	}()

	s.logger.Printf(
		"Working... receipt_id=%s source_type=%s object_key=%s",
		payload.ReceiptID,
		payload.SourceType,
		payload.ObjectKey,
	)

	s.updateReceiptStatus(ctx, payload.ReceiptID, domain.ReceiptStatusProcessing)

	request := pipeline.Request{
		ReceiptID:    payload.ReceiptID,
		SourceType:   payload.SourceType,
		ObjectKey:    payload.ObjectKey,
		FileName:     payload.FileName,
		MaxDimension: payload.MaxDimension,
	}

	var result pipeline.Result
	switch payload.SourceType {
	case domain.SourceTypeLocalFile:
		result, err = s.localProcessor.Process(ctx, request)
	default:
		result, err = s.objectProcessor.Process(ctx, request)
	}
	if err != nil {
		s.updateReceiptStatus(ctx, payload.ReceiptID, domain.ReceiptStatusFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "normalize failed")
		s.dispatchWebhook(ctx, payload, "receipt.failed", map[string]any{
			"receipt_id":   payload.ReceiptID,
			"status":       domain.ReceiptStatusFailed,
			"source_type":  payload.SourceType,
			"object_key":   payload.ObjectKey,
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"error":        err.Error(),
		})
		return fmt.Errorf("normalize receipt: %w", err)
	}

	s.logger.Printf(
		"Normalized receipt_id=%s output=%s dimensions=%dx%d bytes=%d",
		payload.ReceiptID,
		result.Output.Path,
		result.Output.Width,
		result.Output.Height,
		result.Output.Bytes,
	)

	output := domain.NormalizedOutput{
		ObjectKey: result.Output.Path,
		Format:    result.Output.Format,
		MIME:      result.Output.MIME,
		Bytes:     result.Output.Bytes,
		Width:     result.Output.Width,
		Height:    result.Output.Height,
	}
	s.saveReceiptOutput(ctx, payload.ReceiptID, output)
	s.updateReceiptStatus(ctx, payload.ReceiptID, domain.ReceiptStatusSucceeded)
	s.metrics.outputBytesTotal.Add(float64(result.Output.Bytes))
	s.recordUsage(ctx, payload.ReceiptID, result, time.Since(startedAt))

	if err := s.dispatchWebhook(ctx, payload, "receipt.normalized", map[string]any{
		"receipt_id":   payload.ReceiptID,
		"status":       domain.ReceiptStatusSucceeded,
		"source_type":  payload.SourceType,
		"object_key":   payload.ObjectKey,
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
		"output":       output,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return err
	}

	outcome = domain.ReceiptStatusSucceeded
	span.SetStatus(codes.Ok, "normalized")
	return nil
}

func (s *Server) updateReceiptStatus(ctx context.Context, receiptID, status string) {
	if s.receiptStore == nil {
		return
	}
	if _, err := s.receiptStore.UpdateStatus(ctx, receiptID, status); err != nil {
		s.logger.Printf("receipt status update failed receipt_id=%s status=%s err=%v", receiptID, status, err)
	}
}

func (s *Server) saveReceiptOutput(ctx context.Context, receiptID string, output domain.NormalizedOutput) {
	if s.receiptStore == nil {
		return
	}
	if _, err := s.receiptStore.SaveOutput(ctx, receiptID, output); err != nil {
		s.logger.Printf("receipt output save failed receipt_id=%s err=%v", receiptID, err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.NormalizeReceiptPayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed receipt_id=%s event=%s err=%v", payload.ReceiptID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

func (s *Server) recordUsage(ctx context.Context, receiptID string, result pipeline.Result, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	userID := "anonymous"
	if s.receiptStore != nil {
		receipt, ok, err := s.receiptStore.Get(ctx, receiptID)
		if err != nil {
			s.logger.Printf("usage lookup failed receipt_id=%s err=%v", receiptID, err)
		} else if ok && strings.TrimSpace(receipt.UserID) != "" {
			userID = receipt.UserID
		}
	}

	pixelsProcessed := int64(result.Output.Width) * int64(result.Output.Height)

	bytesSaved := int64(result.SourceBytes - result.Output.Bytes)
	if bytesSaved < 0 {
		bytesSaved = 0
	}

	computeTimeMS := computeDuration.Milliseconds()
	if computeTimeMS < 1 {
		computeTimeMS = 1
	}

	usage := domain.UsageLog{
		UserID:          userID,
		ReceiptID:       receiptID,
		PixelsProcessed: pixelsProcessed,
		BytesSaved:      bytesSaved,
		ComputeTimeMS:   computeTimeMS,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed receipt_id=%s err=%v", receiptID, err)
		return
	}

	s.metrics.pixelsProcessedTotal.Add(float64(pixelsProcessed))
	s.metrics.bytesSavedTotal.Add(float64(bytesSaved))
	s.metrics.computeTimeMSTotal.Add(float64(computeTimeMS))
}
