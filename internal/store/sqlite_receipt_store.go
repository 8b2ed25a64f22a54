package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/welth-app/receiptflow/internal/domain"
	_ "modernc.org/sqlite"
)

const receiptSchemaSQLite = `
CREATE TABLE IF NOT EXISTS receipts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	source_type TEXT NOT NULL,
	webhook_url TEXT NOT NULL DEFAULT '',
	object_key TEXT NOT NULL,
	file_name TEXT NOT NULL,
	max_dimension INTEGER NOT NULL DEFAULT 0,
	output TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	receipt_id TEXT NOT NULL,
	pixels_processed INTEGER NOT NULL,
	bytes_saved INTEGER NOT NULL,
	compute_time_ms INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
`

// SQLiteReceiptStore keeps receipts in a local database file. It
// serializes timestamps as RFC 3339 text, which SQLite stores and
// sorts without a native timestamp type.
type SQLiteReceiptStore struct {
	db *sql.DB
}

func NewSQLiteReceiptStore(ctx context.Context, path string) (*SQLiteReceiptStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// A single writer avoids SQLITE_BUSY between the API and worker
	// handlers sharing one file.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	store := &SQLiteReceiptStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteReceiptStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, receiptSchemaSQLite); err != nil {
		return fmt.Errorf("ensure receipts schema: %w", err)
	}
	return nil
}

func (s *SQLiteReceiptStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteReceiptStore) Create(ctx context.Context, receipt domain.Receipt) error {
	outputJSON, err := marshalOutput(receipt.Output)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO receipts (id, user_id, status, source_type, webhook_url, object_key, file_name, max_dimension, output, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		receipt.ID,
		receipt.UserID,
		receipt.Status,
		receipt.SourceType,
		receipt.WebhookURL,
		receipt.ObjectKey,
		receipt.FileName,
		receipt.MaxDimension,
		nullableText(outputJSON),
		formatTime(receipt.CreatedAt),
		formatTime(receipt.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}

	return nil
}

func (s *SQLiteReceiptStore) Get(ctx context.Context, id string) (domain.Receipt, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, user_id, status, source_type, webhook_url, object_key, file_name, max_dimension, output, created_at, updated_at
		 FROM receipts
		 WHERE id = ?`,
		id,
	)

	var (
		receipt    domain.Receipt
		outputJSON sql.NullString
		createdAt  string
		updatedAt  string
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
		&createdAt,
		&updatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Receipt{}, false, nil
		}
		return domain.Receipt{}, false, fmt.Errorf("query receipt: %w", err)
	}

	if outputJSON.Valid {
		output, err := unmarshalOutput([]byte(outputJSON.String))
		if err != nil {
			return domain.Receipt{}, false, err
		}
		receipt.Output = output
	}

	var err error
	if receipt.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Receipt{}, false, err
	}
	if receipt.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Receipt{}, false, err
	}

	return receipt, true, nil
}

func (s *SQLiteReceiptStore) UpdateStatus(ctx context.Context, id, status string) (domain.Receipt, error) {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE receipts
		 SET status = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("update receipt status: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *SQLiteReceiptStore) SaveOutput(ctx context.Context, id string, output domain.NormalizedOutput) (domain.Receipt, error) {
	outputJSON, err := marshalOutput(&output)
	if err != nil {
		return domain.Receipt{}, err
	}

	_, err = s.db.ExecContext(
		ctx,
		`UPDATE receipts
		 SET output = ?, updated_at = ?
		 WHERE id = ?`,
		nullableText(outputJSON),
		formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("save receipt output: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *SQLiteReceiptStore) CreateUsageLog(ctx context.Context, usage domain.UsageLog) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO usage_logs (user_id, receipt_id, pixels_processed, bytes_saved, compute_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		usage.UserID,
		usage.ReceiptID,
		usage.PixelsProcessed,
		usage.BytesSaved,
		usage.ComputeTimeMS,
		formatTime(usage.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}

func (s *SQLiteReceiptStore) mustGet(ctx context.Context, id string) (domain.Receipt, error) {
	receipt, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Receipt{}, err
	}
	if !ok {
		return domain.Receipt{}, ErrReceiptNotFound
	}
	return receipt, nil
}

func nullableText(data []byte) sql.NullString {
	if len(data) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", raw, err)
	}
	return t, nil
}
