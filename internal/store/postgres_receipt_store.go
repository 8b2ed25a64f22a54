package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/welth-app/receiptflow/internal/domain"
	_ "github.com/lib/pq"
)

const receiptSchemaSQL = `
CREATE TABLE IF NOT EXISTS receipts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	source_type TEXT NOT NULL,
	webhook_url TEXT NOT NULL DEFAULT '',
	object_key TEXT NOT NULL,
	file_name TEXT NOT NULL,
	max_dimension INTEGER NOT NULL DEFAULT 0,
	output JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_logs (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	receipt_id TEXT NOT NULL,
	pixels_processed BIGINT NOT NULL,
	bytes_saved BIGINT NOT NULL,
	compute_time_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

type PostgresReceiptStore struct {
	db *sql.DB
}

func NewPostgresReceiptStore(ctx context.Context, dsn string) (*PostgresReceiptStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresReceiptStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresReceiptStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, receiptSchemaSQL); err != nil {
		return fmt.Errorf("ensure receipts schema: %w", err)
	}
	return nil
}

func (s *PostgresReceiptStore) Close() error {
	return s.db.Close()
}

func (s *PostgresReceiptStore) Create(ctx context.Context, receipt domain.Receipt) error {
	outputJSON, err := marshalOutput(receipt.Output)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO receipts (id, user_id, status, source_type, webhook_url, object_key, file_name, max_dimension, output, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		receipt.ID,
		receipt.UserID,
		receipt.Status,
		receipt.SourceType,
		receipt.WebhookURL,
		receipt.ObjectKey,
		receipt.FileName,
		receipt.MaxDimension,
		outputJSON,
		receipt.CreatedAt,
		receipt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}

	return nil
}

func (s *PostgresReceiptStore) Get(ctx context.Context, id string) (domain.Receipt, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, user_id, status, source_type, webhook_url, object_key, file_name, max_dimension, output, created_at, updated_at
		 FROM receipts
		 WHERE id = $1`,
		id,
	)

	var (
		receipt    domain.Receipt
		outputJSON []byte
	)
	if err := row.Scan(
		&receipt.ID,
		&receipt.UserID,
		&receipt.Status,
		&receipt.SourceType,
		&receipt.WebhookURL,
		&receipt.ObjectKey,
		&receipt.FileName,
		&receipt.MaxDimension,
		&outputJSON,
		&receipt.CreatedAt,
		&receipt.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Receipt{}, false, nil
		}
		return domain.Receipt{}, false, fmt.Errorf("query receipt: %w", err)
	}

	output, err := unmarshalOutput(outputJSON)
	if err != nil {
		return domain.Receipt{}, false, err
	}
	receipt.Output = output

	return receipt, true, nil
}

func (s *PostgresReceiptStore) UpdateStatus(ctx context.Context, id, status string) (domain.Receipt, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE receipts
		 SET status = $1, updated_at = $2
		 WHERE id = $3`,
		status,
		now,
		id,
	)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("update receipt status: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *PostgresReceiptStore) SaveOutput(ctx context.Context, id string, output domain.NormalizedOutput) (domain.Receipt, error) {
	outputJSON, err := marshalOutput(&output)
	if err != nil {
		return domain.Receipt{}, err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE receipts
		 SET output = $1, updated_at = $2
		 WHERE id = $3`,
		outputJSON,
		now,
		id,
	)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("save receipt output: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *PostgresReceiptStore) CreateUsageLog(ctx context.Context, usage domain.UsageLog) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO usage_logs (user_id, receipt_id, pixels_processed, bytes_saved, compute_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		usage.UserID,
		usage.ReceiptID,
		usage.PixelsProcessed,
		usage.BytesSaved,
		usage.ComputeTimeMS,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}

func (s *PostgresReceiptStore) mustGet(ctx context.Context, id string) (domain.Receipt, error) {
	receipt, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Receipt{}, err
	}
	if !ok {
		return domain.Receipt{}, ErrReceiptNotFound
	}
	return receipt, nil
}

func marshalOutput(output *domain.NormalizedOutput) ([]byte, error) {
	if output == nil {
		return nil, nil
	}
	data, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("marshal receipt output: %w", err)
	}
	return data, nil
}

func unmarshalOutput(data []byte) (*domain.NormalizedOutput, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var output domain.NormalizedOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, fmt.Errorf("unmarshal receipt output: %w", err)
	}
	return &output, nil
}
