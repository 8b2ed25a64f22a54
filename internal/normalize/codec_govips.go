//go:build govips && cgo

package normalize

import (
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
)

// govipsCodec runs decode/resample/encode through libvips. Rasters wrap
// a *vips.ImageRef; libvips frees the underlying buffers through the
// ref's finalizer once the raster is unreachable.
type govipsCodec struct{}

type govipsRaster struct {
	ref *vips.ImageRef
}

func (r govipsRaster) Width() int  { return r.ref.Width() }
func (r govipsRaster) Height() int { return r.ref.Height() }

func (govipsCodec) Decode(data []byte) (Raster, error) {
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return govipsRaster{ref: ref}, nil
}

func (govipsCodec) Resample(r Raster, width, height int) (Raster, error) {
	src, err := govipsRasterOf(r)
	if err != nil {
		return nil, err
	}
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}
	if src.ref.Width() < 1 || src.ref.Height() < 1 {
		return nil, fmt.Errorf("source raster is %dx%d", src.ref.Width(), src.ref.Height())
	}

	hscale := float64(width) / float64(src.ref.Width())
	vscale := float64(height) / float64(src.ref.Height())
	if err := src.ref.ResizeWithVScale(hscale, vscale, vips.KernelLanczos3); err != nil {
		return nil, fmt.Errorf("resize image: %w", err)
	}
	return src, nil
}

func (govipsCodec) Encode(r Raster, format string, quality int) ([]byte, error) {
	src, err := govipsRasterOf(r)
	if err != nil {
		return nil, err
	}

	switch normalizeFormat(format) {
	case "jpeg":
		params := vips.NewJpegExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err := src.ref.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case "png":
		params := vips.NewPngExportParams()
		data, _, err := src.ref.ExportPng(params)
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case "webp":
		params := vips.NewWebpExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err := src.ref.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

func govipsRasterOf(r Raster) (govipsRaster, error) {
	src, ok := r.(govipsRaster)
	if !ok {
		return govipsRaster{}, fmt.Errorf("raster %T was not produced by this codec", r)
	}
	return src, nil
}
