package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	_ "image/jpeg"

	"github.com/welth-app/receiptflow/internal/domain"
	"github.com/welth-app/receiptflow/internal/normalize"
)

const SourceTypeLocalFile = domain.SourceTypeLocalFile

var ErrUnsupportedSourceType = errors.New("unsupported source_type")

// Request identifies one receipt to normalize: where its source bytes
// live and which bound to apply. MaxDimension zero selects the service
// default.
type Request struct {
	ReceiptID    string
	SourceType   string
	ObjectKey    string
	FileName     string
	MaxDimension int
}

// Output describes where the normalized image was written.
type Output struct {
	Path   string
	Format string
	MIME   string
	Bytes  int
	Width  int
	Height int
}

type Result struct {
	SourceBytes int
	Output      Output
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// Emitter places the normalized image somewhere durable. The processor
// measures the encoded output itself and fills in Output dimensions
// after the emit succeeds.
type Emitter interface {
	Emit(ctx context.Context, req Request, out normalize.File) (Output, error)
}

type Normalizer interface {
	Normalize(ctx context.Context, src normalize.File, maxDimension int) (normalize.File, error)
}

// Processor runs the fetch -> normalize -> emit chain for one receipt.
type Processor struct {
	fetcher    Fetcher
	normalizer Normalizer
	emitter    Emitter
}

// NewProcessor assembles a processor from explicit stages.
func NewProcessor(fetcher Fetcher, normalizer Normalizer, emitter Emitter) (*Processor, error) {
	if fetcher == nil || normalizer == nil || emitter == nil {
		return nil, errors.New("fetcher, normalizer, and emitter are required")
	}
	return &Processor{fetcher: fetcher, normalizer: normalizer, emitter: emitter}, nil
}

func NewLocalProcessor(outputDir string) (*Processor, error) {
	if strings.TrimSpace(outputDir) == "" {
		return nil, errors.New("output directory is required")
	}

	return &Processor{
		fetcher:    LocalFileFetcher{},
		normalizer: normalize.New(),
		emitter:    LocalFileEmitter{OutputDir: outputDir},
	}, nil
}

func NewObjectStoreProcessor(fetcher ObjectStoreFetcher, emitter ObjectStoreEmitter) (*Processor, error) {
	if fetcher.Storage == nil || emitter.Storage == nil {
		return nil, errors.New("storage client is required")
	}

	return &Processor{
		fetcher:    fetcher,
		normalizer: normalize.New(),
		emitter:    emitter,
	}, nil
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.ReceiptID) == "" {
		return Result{}, errors.New("receipt_id is required")
	}
	if strings.TrimSpace(req.FileName) == "" {
		return Result{}, errors.New("file_name is required")
	}

	sourceBytes, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	bound := req.MaxDimension
	if bound == 0 {
		bound = normalize.DefaultMaxDimension
	}

	out, err := p.normalizer.Normalize(ctx, normalize.File{Name: req.FileName, Data: sourceBytes}, bound)
	if err != nil {
		return Result{}, fmt.Errorf("normalize stage receipt=%s: %w", req.ReceiptID, err)
	}

	width, height, err := outputDims(out.Data)
	if err != nil {
		return Result{}, fmt.Errorf("normalize stage receipt=%s: %w", req.ReceiptID, err)
	}

	written, err := p.emitter.Emit(ctx, req, out)
	if err != nil {
		return Result{}, fmt.Errorf("emit stage receipt=%s: %w", req.ReceiptID, err)
	}
	written.Width = width
	written.Height = height

	return Result{SourceBytes: len(sourceBytes), Output: written}, nil
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, out normalize.File) (Output, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return Output{}, errors.New("output directory is required")
	}

	receiptDir := filepath.Join(e.OutputDir, sanitizePathToken(req.ReceiptID))
	if err := os.MkdirAll(receiptDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(receiptDir, outputFileName(out.Name))
	if err := os.WriteFile(fullPath, out.Data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}

	return Output{
		Path:   fullPath,
		Format: normalize.OutputFormat,
		MIME:   out.MIME,
		Bytes:  len(out.Data),
	}, nil
}

// FileEmitter writes the normalized image to one explicit path,
// creating parent directories as needed. The one-shot CLI uses it to
// honor an exact output destination.
type FileEmitter struct {
	Path string
}

func (e FileEmitter) Emit(_ context.Context, _ Request, out normalize.File) (Output, error) {
	if strings.TrimSpace(e.Path) == "" {
		return Output{}, errors.New("output path is required")
	}

	if dir := filepath.Dir(e.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Output{}, fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(e.Path, out.Data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}

	return Output{
		Path:   e.Path,
		Format: normalize.OutputFormat,
		MIME:   out.MIME,
		Bytes:  len(out.Data),
	}, nil
}

// outputDims reads the encoded header only; the output is always JPEG,
// which the stdlib can measure regardless of which codec produced it.
func outputDims(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("measure output image: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// outputFileName strips the source extension and applies the fixed
// output format's, so "lunch.png" is stored as "lunch.jpg".
func outputFileName(fileName string) string {
	base := strings.TrimSpace(fileName)
	if idx := strings.LastIndex(base, "."); idx > 0 {
		base = base[:idx]
	}
	return sanitizePathToken(base) + ".jpg"
}
