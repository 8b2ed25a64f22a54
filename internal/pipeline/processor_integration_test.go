package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/welth-app/receiptflow/internal/normalize"
)

func TestLocalProcessor_FileInNormalizedFileOut(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	outputDir := filepath.Join(tmp, "out")

	srcBytes := buildTestPNG(t, 1200, 600)
	if err := os.WriteFile(inputPath, srcBytes, 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}

	processor, err := NewLocalProcessor(outputDir)
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	result, err := processor.Process(context.Background(), Request{
		ReceiptID:  "receipt-local-1",
		SourceType: SourceTypeLocalFile,
		ObjectKey:  inputPath,
		FileName:   "lunch receipt.png",
	})
	if err != nil {
		t.Fatalf("process request: %v", err)
	}

	if result.SourceBytes != len(srcBytes) {
		t.Fatalf("expected source bytes %d, got %d", len(srcBytes), result.SourceBytes)
	}

	out := result.Output
	if out.Format != "jpeg" {
		t.Fatalf("expected jpeg output format, got %s", out.Format)
	}
	if out.MIME != normalize.OutputMIME {
		t.Fatalf("expected mime %s, got %s", normalize.OutputMIME, out.MIME)
	}
	if out.Width != 512 || out.Height != 256 {
		t.Fatalf("expected 512x256 output, got %dx%d", out.Width, out.Height)
	}

	wantPath := filepath.Join(outputDir, "receipt-local-1", "lunch_receipt.jpg")
	if out.Path != wantPath {
		t.Fatalf("expected output path %s, got %s", wantPath, out.Path)
	}
	verifyImageWidth(t, out.Path, 512)
}

func TestLocalProcessor_CustomMaxDimension(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")

	if err := os.WriteFile(inputPath, buildTestPNG(t, 1200, 600), 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}

	processor, err := NewLocalProcessor(filepath.Join(tmp, "out"))
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	result, err := processor.Process(context.Background(), Request{
		ReceiptID:    "receipt-local-2",
		SourceType:   SourceTypeLocalFile,
		ObjectKey:    inputPath,
		FileName:     "input.png",
		MaxDimension: 100,
	})
	if err != nil {
		t.Fatalf("process request: %v", err)
	}

	if result.Output.Width != 100 || result.Output.Height != 50 {
		t.Fatalf("expected 100x50 output, got %dx%d", result.Output.Width, result.Output.Height)
	}
}

func TestLocalProcessor_SmallSourceKeepsDimensions(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")

	if err := os.WriteFile(inputPath, buildTestPNG(t, 240, 120), 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}

	processor, err := NewLocalProcessor(filepath.Join(tmp, "out"))
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	result, err := processor.Process(context.Background(), Request{
		ReceiptID:  "receipt-local-3",
		SourceType: SourceTypeLocalFile,
		ObjectKey:  inputPath,
		FileName:   "input.png",
	})
	if err != nil {
		t.Fatalf("process request: %v", err)
	}

	if result.Output.Width != 240 || result.Output.Height != 120 {
		t.Fatalf("expected pass-through 240x120, got %dx%d", result.Output.Width, result.Output.Height)
	}
	if result.Output.Format != "jpeg" {
		t.Fatalf("expected re-encoded jpeg, got %s", result.Output.Format)
	}
}

func TestLocalProcessor_UnsupportedSourceType(t *testing.T) {
	processor, err := NewLocalProcessor(t.TempDir())
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	_, err = processor.Process(context.Background(), Request{
		ReceiptID:  "receipt-unsupported",
		SourceType: "s3_presigned",
		ObjectKey:  "uploads/receipt/source",
		FileName:   "input.png",
	})
	if !errors.Is(err, ErrUnsupportedSourceType) {
		t.Fatalf("expected unsupported source_type error, got %v", err)
	}
}

func TestLocalProcessor_CorruptSourcePropagatesDecodeFailure(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")

	if err := os.WriteFile(inputPath, []byte("not an image at all"), 0o644); err != nil {
		t.Fatalf("write input file: %v", err)
	}

	processor, err := NewLocalProcessor(filepath.Join(tmp, "out"))
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	_, err = processor.Process(context.Background(), Request{
		ReceiptID:  "receipt-corrupt",
		SourceType: SourceTypeLocalFile,
		ObjectKey:  inputPath,
		FileName:   "input.png",
	})
	if !errors.Is(err, normalize.ErrDecode) {
		t.Fatalf("expected decode failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "receipt-corrupt") {
		t.Fatalf("expected receipt id in error, got %v", err)
	}
}

func TestProcessorMeasuresEmittedOutput(t *testing.T) {
	emitter := &captureEmitter{}
	processor, err := NewProcessor(staticFetcher{data: buildTestPNG(t, 800, 400)}, normalize.New(), emitter)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}

	result, err := processor.Process(context.Background(), Request{
		ReceiptID:    "receipt-measured",
		SourceType:   SourceTypeLocalFile,
		ObjectKey:    "ignored.png",
		FileName:     "input.png",
		MaxDimension: 200,
	})
	if err != nil {
		t.Fatalf("process request: %v", err)
	}

	if emitter.req.ReceiptID != "receipt-measured" {
		t.Fatalf("expected emitter to receive the request, got receipt %q", emitter.req.ReceiptID)
	}
	if emitter.file.Name != "input.png" {
		t.Fatalf("expected emitter to receive input.png, got %q", emitter.file.Name)
	}
	if result.Output.Width != 200 || result.Output.Height != 100 {
		t.Fatalf("expected processor-measured 200x100, got %dx%d", result.Output.Width, result.Output.Height)
	}
	if result.Output.Path != "captured" {
		t.Fatalf("expected emitter-assigned path, got %q", result.Output.Path)
	}
}

func TestFileEmitterWritesExactPath(t *testing.T) {
	tmp := t.TempDir()
	outputPath := filepath.Join(tmp, "exports", "2026", "receipt.jpg")

	out, err := FileEmitter{Path: outputPath}.Emit(context.Background(), Request{ReceiptID: "receipt-exact"}, normalize.File{
		Name: "receipt.png",
		MIME: normalize.OutputMIME,
		Data: []byte("encoded bytes"),
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	if out.Path != outputPath {
		t.Fatalf("expected path %s, got %s", outputPath, out.Path)
	}
	written, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read emitted file: %v", err)
	}
	if string(written) != "encoded bytes" {
		t.Fatalf("expected emitted bytes to round-trip, got %q", written)
	}

	if _, err := (FileEmitter{}).Emit(context.Background(), Request{}, normalize.File{}); err == nil {
		t.Fatal("expected error for empty output path")
	}
}

func TestLocalProcessor_RequiresReceiptIDAndFileName(t *testing.T) {
	processor, err := NewLocalProcessor(t.TempDir())
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	if _, err := processor.Process(context.Background(), Request{
		SourceType: SourceTypeLocalFile,
		ObjectKey:  "ignored.png",
		FileName:   "input.png",
	}); err == nil {
		t.Fatal("expected missing receipt_id error")
	}

	if _, err := processor.Process(context.Background(), Request{
		ReceiptID:  "receipt-no-name",
		SourceType: SourceTypeLocalFile,
		ObjectKey:  "ignored.png",
	}); err == nil {
		t.Fatal("expected missing file_name error")
	}
}

type captureEmitter struct {
	req  Request
	file normalize.File
}

func (e *captureEmitter) Emit(_ context.Context, req Request, out normalize.File) (Output, error) {
	e.req = req
	e.file = out
	return Output{
		Path:   "captured",
		Format: normalize.OutputFormat,
		MIME:   out.MIME,
		Bytes:  len(out.Data),
	}, nil
}

func buildTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

func verifyImageWidth(t *testing.T, path string, want int) {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open image %s: %v", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		t.Fatalf("decode image %s: %v", path, err)
	}

	if got := img.Bounds().Dx(); got != want {
		t.Fatalf("expected width %d, got %d", want, got)
	}
}
