package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ReceiptStatusCreated    = "created"
	ReceiptStatusQueued     = "queued"
	ReceiptStatusProcessing = "processing"
	ReceiptStatusSucceeded  = "succeeded"
	ReceiptStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"
)

// CreateReceiptRequest is the API payload for registering a receipt
// image. MaxDimension zero means "use the service default"; the bound
// itself is applied by the normalizer at processing time.
type CreateReceiptRequest struct {
	SourceType   string `json:"source_type"`
	FileName     string `json:"file_name"`
	WebhookURL   string `json:"webhook_url,omitempty"`
	ObjectKey    string `json:"object_key,omitempty"`
	MaxDimension int    `json:"max_dimension,omitempty"`
}

// Receipt is one normalization job: where the source image lives, what
// bound to apply, and what came out.
type Receipt struct {
	ID           string
	UserID       string
	Status       string
	SourceType   string
	WebhookURL   string
	ObjectKey    string
	FileName     string
	MaxDimension int
	Output       *NormalizedOutput
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizedOutput describes the re-encoded image produced for a
// receipt.
type NormalizedOutput struct {
	ObjectKey string `json:"object_key"`
	Format    string `json:"format"`
	MIME      string `json:"mime"`
	Bytes     int    `json:"bytes"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

func (r CreateReceiptRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return errors.New("object_key is required for source_type=local_file")
	}
	if strings.TrimSpace(r.FileName) == "" {
		return errors.New("file_name is required")
	}
	if r.MaxDimension < 0 {
		return fmt.Errorf("max_dimension must not be negative, got %d", r.MaxDimension)
	}
	return nil
}
