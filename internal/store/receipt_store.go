package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/welth-app/receiptflow/internal/domain"
)

var ErrReceiptNotFound = errors.New("receipt not found")

type ReceiptStore interface {
	Create(ctx context.Context, receipt domain.Receipt) error
	Get(ctx context.Context, id string) (domain.Receipt, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Receipt, error)
	SaveOutput(ctx context.Context, id string, output domain.NormalizedOutput) (domain.Receipt, error)
}

type UsageStore interface {
	CreateUsageLog(ctx context.Context, usage domain.UsageLog) error
}

// Open builds the receipt store selected by backend: "memory",
// "sqlite", or "postgres". Callers that need usage logging assert the
// returned store against UsageStore.
func Open(ctx context.Context, backend, postgresDSN, sqlitePath string) (ReceiptStore, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "memory":
		return NewMemoryReceiptStore(), nil
	case "sqlite":
		return NewSQLiteReceiptStore(ctx, sqlitePath)
	case "postgres":
		return NewPostgresReceiptStore(ctx, postgresDSN)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", backend)
	}
}
