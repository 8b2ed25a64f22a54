package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TypeNormalizeReceipt = "receipt:normalize"

type NormalizeReceiptPayload struct {
	ReceiptID    string    `json:"receipt_id"`
	UserID       string    `json:"user_id,omitempty"`
	SourceType   string    `json:"source_type"`
	WebhookURL   string    `json:"webhook_url,omitempty"`
	ObjectKey    string    `json:"object_key"`
	FileName     string    `json:"file_name"`
	MaxDimension int       `json:"max_dimension,omitempty"`
	RequestedAt  time.Time `json:"requested_at"`
}

func NewNormalizeReceiptTask(payload NormalizeReceiptPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal normalize payload: %w", err)
	}
	return asynq.NewTask(TypeNormalizeReceipt, body), nil
}

func ParseNormalizeReceiptPayload(task *asynq.Task) (NormalizeReceiptPayload, error) {
	var payload NormalizeReceiptPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NormalizeReceiptPayload{}, fmt.Errorf("unmarshal normalize payload: %w", err)
	}
	return payload, nil
}
