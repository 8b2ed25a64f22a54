package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/welth-app/receiptflow/internal/domain"
	"github.com/welth-app/receiptflow/internal/id"
	"github.com/welth-app/receiptflow/internal/normalize"
	"github.com/welth-app/receiptflow/internal/queue"
	"github.com/welth-app/receiptflow/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultUserIDHeader = "X-User-ID"

type Server struct {
	logger         *log.Logger
	queueClient    queueEnqueuer
	receiptStore   store.ReceiptStore
	storage        objectStorage
	normalizer     syncNormalizer
	rateLimiter    RateLimiter
	userIDHeader   string
	presignTTL     time.Duration
	maxUploadBytes int64
	metrics        *metrics
	tracer         trace.Tracer
	mux            *http.ServeMux
}

type queueEnqueuer interface {
	EnqueueNormalizeReceipt(ctx context.Context, payload queue.NormalizeReceiptPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

type syncNormalizer interface {
	Normalize(ctx context.Context, src normalize.File, maxDimension int) (normalize.File, error)
}

func NewServer(
	logger *log.Logger,
	queueClient queueEnqueuer,
	receiptStore store.ReceiptStore,
	storage objectStorage,
	rateLimiter RateLimiter,
	presignTTL time.Duration,
	maxUploadBytes int64,
	userIDHeader string,
) *Server {
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	if storage == nil {
		storage = unavailableObjectStorage{}
	}
	if strings.TrimSpace(userIDHeader) == "" {
		userIDHeader = defaultUserIDHeader
	}

	s := &Server{
		logger:         logger,
		queueClient:    queueClient,
		receiptStore:   receiptStore,
		storage:        storage,
		normalizer:     normalize.New(),
		rateLimiter:    rateLimiter,
		userIDHeader:   userIDHeader,
		presignTTL:     presignTTL,
		maxUploadBytes: maxUploadBytes,
		metrics:        newMetrics(),
		tracer:         otel.Tracer("receiptflow/api"),
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(_ context.Context, _ string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.metrics.withHTTPMetrics(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /v1/receipts", s.handleCreateReceipt)
	s.mux.HandleFunc("POST /v1/receipts/", s.handleStartNormalize)
	s.mux.HandleFunc("GET /v1/receipts/", s.handleGetReceipt)
	s.mux.HandleFunc("POST /v1/normalize", s.handleNormalizeSync)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateReceiptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	receiptID := id.New()
	sourceType := strings.ToLower(strings.TrimSpace(req.SourceType))
	objectKey := strings.TrimSpace(req.ObjectKey)
	uploadState := "not_required"
	presignedPutURL := ""

	if sourceType == domain.SourceTypeS3Presigned {
		objectKey = fmt.Sprintf("uploads/%s/source", receiptID)
		url, err := s.storage.PresignedPutURL(r.Context(), objectKey, s.presignTTL)
		if err != nil {
			s.logger.Printf("generate presigned url failed for receipt %s: %v", receiptID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate upload URL"})
			return
		}
		presignedPutURL = url
		uploadState = "ready"
	}

	receipt := domain.Receipt{
		ID:           receiptID,
		UserID:       strings.TrimSpace(r.Header.Get(s.userIDHeader)),
		Status:       domain.ReceiptStatusCreated,
		SourceType:   sourceType,
		WebhookURL:   req.WebhookURL,
		ObjectKey:    objectKey,
		FileName:     strings.TrimSpace(req.FileName),
		MaxDimension: req.MaxDimension,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.receiptStore.Create(r.Context(), receipt); err != nil {
		s.logger.Printf("create receipt failed for receipt %s: %v", receipt.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create receipt"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"receipt_id": receipt.ID,
		"status":     receipt.Status,
		"upload": map[string]string{
			"object_key":          receipt.ObjectKey,
			"presigned_put_url":   presignedPutURL,
			"presigned_url_state": uploadState,
		},
		"normalize_url": fmt.Sprintf("/v1/receipts/%s/normalize", receipt.ID),
	})
}

func (s *Server) handleStartNormalize(w http.ResponseWriter, r *http.Request) {
	receiptID, err := extractReceiptIDFromNormalizePath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	receipt, ok, err := s.receiptStore.Get(r.Context(), receiptID)
	if err != nil {
		s.logger.Printf("fetch receipt failed for receipt %s: %v", receiptID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load receipt"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "receipt not found"})
		return
	}

	if err := s.verifySourceExists(r.Context(), receipt); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	payload := queue.NormalizeReceiptPayload{
		ReceiptID:    receipt.ID,
		UserID:       receipt.UserID,
		SourceType:   receipt.SourceType,
		WebhookURL:   receipt.WebhookURL,
		ObjectKey:    receipt.ObjectKey,
		FileName:     receipt.FileName,
		MaxDimension: receipt.MaxDimension,
		RequestedAt:  time.Now().UTC(),
	}

	taskInfo, err := s.queueClient.EnqueueNormalizeReceipt(r.Context(), payload)
	if err != nil {
		s.logger.Printf("enqueue failed for receipt %s: %v", receipt.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue receipt"})
		return
	}

	if _, err := s.receiptStore.UpdateStatus(r.Context(), receipt.ID, domain.ReceiptStatusQueued); err != nil {
		s.logger.Printf("update status failed for receipt %s: %v", receipt.ID, err)
	}

	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"receipt_id":  receipt.ID,
		"status":      domain.ReceiptStatusQueued,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receiptID, err := extractReceiptIDFromPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	receipt, ok, err := s.receiptStore.Get(r.Context(), receiptID)
	if err != nil {
		s.logger.Printf("fetch receipt failed for receipt %s: %v", receiptID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load receipt"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "receipt not found"})
		return
	}

	resp := map[string]any{
		"receipt_id":    receipt.ID,
		"status":        receipt.Status,
		"source_type":   receipt.SourceType,
		"object_key":    receipt.ObjectKey,
		"file_name":     receipt.FileName,
		"max_dimension": receipt.MaxDimension,
		"created_at":    receipt.CreatedAt,
		"updated_at":    receipt.UpdatedAt,
	}
	if receipt.UserID != "" {
		resp["user_id"] = receipt.UserID
	}
	if receipt.Output != nil {
		resp["output"] = receipt.Output
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) verifySourceExists(ctx context.Context, receipt domain.Receipt) error {
	switch receipt.SourceType {
	case domain.SourceTypeLocalFile:
		if _, err := os.Stat(receipt.ObjectKey); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("source object is missing: %s", receipt.ObjectKey)
			}
			return fmt.Errorf("source object check failed: %w", err)
		}
		return nil
	default:
		exists, err := s.storage.ObjectExists(ctx, receipt.ObjectKey)
		if err != nil {
			return fmt.Errorf("source object check failed: %w", err)
		}
		if !exists {
			return fmt.Errorf("source object is missing: %s", receipt.ObjectKey)
		}
		return nil
	}
}

func extractReceiptIDFromNormalizePath(path string) (string, error) {
	trimmed := strings.TrimPrefix(path, "/v1/receipts/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "normalize" {
		return "", errors.New("expected path format /v1/receipts/{id}/normalize")
	}
	return parts[0], nil
}

func extractReceiptIDFromPath(path string) (string, error) {
	trimmed := strings.Trim(strings.TrimPrefix(path, "/v1/receipts/"), "/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		return "", errors.New("expected path format /v1/receipts/{id}")
	}
	return trimmed, nil
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
