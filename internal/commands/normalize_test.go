package commands

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/welth-app/receiptflow/internal/normalize"
)

func buildCommandPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestRunNormalizeWritesBoundedJPEG(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "receipt.png")
	if err := os.WriteFile(input, buildCommandPNG(t, 1200, 600), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	output := filepath.Join(dir, "out.jpg")

	if err := runNormalize(context.Background(), input, output, 512); err != nil {
		t.Fatalf("run normalize: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "jpeg" {
		t.Fatalf("expected jpeg output, got %s", format)
	}
	if cfg.Width != 512 || cfg.Height != 256 {
		t.Fatalf("expected 512x256, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestRunNormalizeDefaultsOutputPath(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "receipt.png")
	if err := os.WriteFile(input, buildCommandPNG(t, 100, 100), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	if err := runNormalize(context.Background(), input, "", 512); err != nil {
		t.Fatalf("run normalize: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "receipt.normalized.jpg")); err != nil {
		t.Fatalf("expected default output next to input: %v", err)
	}
}

func TestRunNormalizeCreatesOutputDirectory(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "receipt.png")
	if err := os.WriteFile(input, buildCommandPNG(t, 800, 400), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	output := filepath.Join(dir, "exports", "receipts", "out.jpg")

	if err := runNormalize(context.Background(), input, output, 512); err != nil {
		t.Fatalf("run normalize: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output under created directories: %v", err)
	}
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err != nil || format != "jpeg" {
		t.Fatalf("expected decodable jpeg output, got format=%s err=%v", format, err)
	}
}

func TestRunNormalizeRejectsNonPositiveBound(t *testing.T) {
	if err := runNormalize(context.Background(), "ignored.png", "", 0); err == nil {
		t.Fatal("expected error for max dimension 0")
	}
}

func TestRunNormalizeRejectsCorruptInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "garbage.png")
	if err := os.WriteFile(input, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	err := runNormalize(context.Background(), input, filepath.Join(dir, "out.jpg"), 512)
	if !errors.Is(err, normalize.ErrDecode) {
		t.Fatalf("expected decode failure, got %v", err)
	}
}

func TestRunInspectReadsImage(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "receipt.png")
	if err := os.WriteFile(input, buildCommandPNG(t, 64, 48), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	if err := runInspect(input); err != nil {
		t.Fatalf("run inspect: %v", err)
	}
}

func TestRunInspectRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "garbage.bin")
	if err := os.WriteFile(input, []byte{0x00, 0x01, 0x02}, 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	if err := runInspect(input); err == nil {
		t.Fatal("expected error for undecodable input")
	}
}

func TestNewRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()

	found := map[string]bool{}
	for _, cmd := range root.Commands() {
		found[cmd.Name()] = true
	}
	for _, name := range []string{"normalize", "inspect"} {
		if !found[name] {
			t.Fatalf("expected %s subcommand to be registered", name)
		}
	}
}
