package normalize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"
)

func TestNormalizeDownscalesLandscape(t *testing.T) {
	src := File{Name: "receipt-1042.png", MIME: "image/png", Data: buildPNG(t, 2000, 1000)}

	before := time.Now().UTC()
	out, err := New().Normalize(context.Background(), src, 512)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	w, h, format := decodeDims(t, out.Data)
	if w != 512 || h != 256 {
		t.Fatalf("expected 512x256 output, got %dx%d", w, h)
	}
	if format != "jpeg" {
		t.Fatalf("expected jpeg output, got %s", format)
	}
	if out.MIME != OutputMIME {
		t.Fatalf("expected MIME %s, got %s", OutputMIME, out.MIME)
	}
	if out.Name != src.Name {
		t.Fatalf("expected name %q preserved, got %q", src.Name, out.Name)
	}
	if out.Modified.Before(before) || out.Modified.After(time.Now().UTC()) {
		t.Fatalf("expected fresh modification timestamp, got %v", out.Modified)
	}
}

func TestNormalizeDownscalesPortrait(t *testing.T) {
	src := File{Name: "receipt.png", Data: buildPNG(t, 1000, 2000)}

	out, err := New().Normalize(context.Background(), src, 512)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	w, h, _ := decodeDims(t, out.Data)
	if w != 256 || h != 512 {
		t.Fatalf("expected 256x512 output, got %dx%d", w, h)
	}
}

func TestNormalizeRoundsShortSide(t *testing.T) {
	// 1000x333 at max 512: scale 0.512, short side 170.496 rounds down.
	src := File{Name: "receipt.png", Data: buildPNG(t, 1000, 333)}

	out, err := New().Normalize(context.Background(), src, 512)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	w, h, _ := decodeDims(t, out.Data)
	if w != 512 || h != 170 {
		t.Fatalf("expected 512x170 output, got %dx%d", w, h)
	}
}

func TestNormalizePassesThroughSmallSource(t *testing.T) {
	src := File{Name: "thumb.png", MIME: "image/png", Data: buildPNG(t, 100, 100)}

	out, err := New().Normalize(context.Background(), src, 512)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	w, h, format := decodeDims(t, out.Data)
	if w != 100 || h != 100 {
		t.Fatalf("expected 100x100 pass-through, got %dx%d", w, h)
	}
	if format != "jpeg" {
		t.Fatalf("expected pass-through to re-encode as jpeg, got %s", format)
	}
	if out.MIME != OutputMIME {
		t.Fatalf("expected MIME %s, got %s", OutputMIME, out.MIME)
	}
}

func TestNormalizeMaxDimensionBoundary(t *testing.T) {
	// Exactly at the bound: pass-through.
	src := File{Name: "exact.png", Data: buildPNG(t, 512, 400)}
	out, err := New().Normalize(context.Background(), src, 512)
	if err != nil {
		t.Fatalf("normalize at boundary: %v", err)
	}
	if w, h, _ := decodeDims(t, out.Data); w != 512 || h != 400 {
		t.Fatalf("expected 512x400 pass-through at boundary, got %dx%d", w, h)
	}

	// One pixel over: downscaled so the longer side equals the bound.
	src = File{Name: "over.png", Data: buildPNG(t, 513, 400)}
	out, err = New().Normalize(context.Background(), src, 512)
	if err != nil {
		t.Fatalf("normalize one over boundary: %v", err)
	}
	if w, _, _ := decodeDims(t, out.Data); w != 512 {
		t.Fatalf("expected longer side 512, got %d", w)
	}
}

func TestNormalizeExtremeAspectKeepsOnePixel(t *testing.T) {
	src := File{Name: "strip.png", Data: buildPNG(t, 2000, 1)}

	out, err := New().Normalize(context.Background(), src, 512)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	if w, h, _ := decodeDims(t, out.Data); w != 512 || h != 1 {
		t.Fatalf("expected 512x1 output, got %dx%d", w, h)
	}
}

func TestNormalizeRejectsCorruptSource(t *testing.T) {
	_, err := New().Normalize(context.Background(), File{Name: "junk.bin", Data: []byte("definitely not an image")}, 512)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}

	_, err = New().Normalize(context.Background(), File{Name: "empty.bin"}, 512)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode for empty data, got %v", err)
	}
}

func TestNormalizeDegenerateMaxDimension(t *testing.T) {
	src := File{Name: "receipt.png", Data: buildPNG(t, 40, 30)}

	_, err := New().Normalize(context.Background(), src, 0)
	if !errors.Is(err, ErrEncode) {
		t.Fatalf("expected ErrEncode for max dimension 0, got %v", err)
	}

	_, err = New().Normalize(context.Background(), src, -64)
	if !errors.Is(err, ErrEncode) {
		t.Fatalf("expected ErrEncode for negative max dimension, got %v", err)
	}
}

func TestNormalizeIdempotentDimensions(t *testing.T) {
	src := File{Name: "receipt.png", Data: buildPNG(t, 1400, 900)}
	n := New()

	first, err := n.Normalize(context.Background(), src, 512)
	if err != nil {
		t.Fatalf("first normalize: %v", err)
	}
	second, err := n.Normalize(context.Background(), src, 512)
	if err != nil {
		t.Fatalf("second normalize: %v", err)
	}

	fw, fh, _ := decodeDims(t, first.Data)
	sw, sh, _ := decodeDims(t, second.Data)
	if fw != sw || fh != sh {
		t.Fatalf("expected identical dimensions, got %dx%d and %dx%d", fw, fh, sw, sh)
	}
}

func TestNormalizeConcurrentCalls(t *testing.T) {
	n := New()
	sizes := []struct {
		srcW, srcH int
		wantW      int
	}{
		{1024, 512, 512},
		{800, 800, 512},
		{300, 200, 300},
		{2048, 1024, 512},
	}

	sources := make([]File, len(sizes))
	for i, size := range sizes {
		sources[i] = File{
			Name: fmt.Sprintf("receipt-%dx%d.png", size.srcW, size.srcH),
			Data: buildPNG(t, size.srcW, size.srcH),
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(sizes))
	for i, size := range sizes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := n.Normalize(context.Background(), sources[i], 512)
			if err != nil {
				errs <- fmt.Errorf("normalize %s: %v", sources[i].Name, err)
				return
			}
			img, _, err := image.Decode(bytes.NewReader(out.Data))
			if err != nil {
				errs <- fmt.Errorf("decode %s output: %v", sources[i].Name, err)
				return
			}
			if w := img.Bounds().Dx(); w != size.wantW {
				errs <- fmt.Errorf("%s: expected width %d, got %d", sources[i].Name, size.wantW, w)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestNormalizeCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Normalize(ctx, File{Name: "receipt.png", Data: buildPNG(t, 64, 64)}, 512)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func BenchmarkNormalizeDownscale(b *testing.B) {
	img := image.NewRGBA(image.Rect(0, 0, 1920, 1080))
	for y := 0; y < 1080; y++ {
		for x := 0; x < 1920; x++ {
			img.Set(x, y, color.RGBA{R: uint8((x * 255) / 1920), G: uint8((y * 255) / 1080), B: 140, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		b.Fatalf("encode source png: %v", err)
	}
	src := File{Name: "bench.png", Data: buf.Bytes()}
	n := New()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := n.Normalize(context.Background(), src, 512); err != nil {
			b.Fatalf("normalize: %v", err)
		}
	}
}

func buildPNG(t testing.TB, w, h int) []byte {
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

func decodeDims(t testing.TB, data []byte) (int, int, string) {
	t.Helper()

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode output image: %v", err)
	}
	return img.Bounds().Dx(), img.Bounds().Dy(), format
}
