package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/welth-app/receiptflow/internal/domain"
	"github.com/welth-app/receiptflow/internal/normalize"
	"github.com/welth-app/receiptflow/internal/storage"
)

const (
	SourceTypeS3Presigned = domain.SourceTypeS3Presigned
)

type ObjectStoreFetcher struct {
	Storage *storage.Client
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	if strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	return f.Storage.ReadObject(ctx, req.ObjectKey)
}

type ObjectStoreEmitter struct {
	Storage      *storage.Client
	OutputPrefix string
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, out normalize.File) (Output, error) {
	if e.Storage == nil {
		return Output{}, errors.New("storage client is required")
	}

	objectKey := path.Join(
		defaultOutputPrefix(e.OutputPrefix),
		sanitizePathToken(req.ReceiptID),
		outputFileName(out.Name),
	)

	if err := e.Storage.WriteObject(ctx, objectKey, out.Data, out.MIME); err != nil {
		return Output{}, err
	}

	return Output{
		Path:   objectKey,
		Format: normalize.OutputFormat,
		MIME:   out.MIME,
		Bytes:  len(out.Data),
	}, nil
}

func defaultOutputPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "normalized"
	}
	return prefix
}
