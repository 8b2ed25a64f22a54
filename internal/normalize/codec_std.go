package normalize

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// stdCodec is the pure-Go codec: stdlib decoders (plus webp from
// x/image), Catmull-Rom resampling, stdlib encoders. Resampling quality
// is bicubic, which is what the fixed-contract output is documented
// against; the govips build substitutes Lanczos3.
type stdCodec struct{}

type stdRaster struct {
	img image.Image
}

func (r stdRaster) Width() int  { return r.img.Bounds().Dx() }
func (r stdRaster) Height() int { return r.img.Bounds().Dy() }

func (stdCodec) Decode(data []byte) (Raster, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return stdRaster{img: img}, nil
}

func (stdCodec) Resample(r Raster, width, height int) (Raster, error) {
	src, err := stdRasterOf(r)
	if err != nil {
		return nil, err
	}
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src.img, src.img.Bounds(), draw.Src, nil)
	return stdRaster{img: dst}, nil
}

func (stdCodec) Encode(r Raster, format string, quality int) ([]byte, error) {
	src, err := stdRasterOf(r)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	switch normalizeFormat(format) {
	case "jpeg":
		if quality <= 0 || quality > 100 {
			quality = OutputQuality
		}
		if err := jpeg.Encode(&buf, src.img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case "png":
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, src.img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case "webp":
		return nil, errors.New("webp export requires the govips build tag")
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	return buf.Bytes(), nil
}

func stdRasterOf(r Raster) (stdRaster, error) {
	src, ok := r.(stdRaster)
	if !ok {
		return stdRaster{}, fmt.Errorf("raster %T was not produced by this codec", r)
	}
	return src, nil
}
