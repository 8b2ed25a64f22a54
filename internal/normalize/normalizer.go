package normalize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Fixed output contract: every normalized receipt is a JPEG at quality
// 70, bounded to DefaultMaxDimension pixels on its longer side unless
// the caller supplies a different bound.
const (
	DefaultMaxDimension = 512
	OutputFormat        = "jpeg"
	OutputMIME          = "image/jpeg"
	OutputQuality       = 70
)

var (
	// ErrDecode reports source bytes that cannot be interpreted as a
	// raster image (corrupt data or an unsupported codec).
	ErrDecode = errors.New("image decode failed")

	// ErrEncode reports a failure to produce the output image, including
	// degenerate target geometry from a non-positive max dimension or a
	// zero-dimension source.
	ErrEncode = errors.New("image encode failed")
)

// Normalizer re-encodes an arbitrary raster image as a JPEG scaled to
// fit within a maximum dimension. It holds no per-call state; one
// instance serves concurrent callers.
type Normalizer struct {
	codec Codec
}

// New returns a Normalizer backed by the codec selected at build time
// (pure Go by default, libvips under the govips tag).
func New() *Normalizer {
	return &Normalizer{codec: newCodec()}
}

// NewWithCodec returns a Normalizer backed by the supplied codec.
func NewWithCodec(codec Codec) *Normalizer {
	return &Normalizer{codec: codec}
}

// Normalize decodes src, scales it to fit within maxDimension pixels on
// its longer side, and re-encodes it as a JPEG carrying the source's
// name and a fresh modification timestamp. Sources that already fit are
// passed through at their original dimensions but still re-encoded.
// maxDimension is not validated here: a non-positive value surfaces as
// an ErrEncode once the target geometry degenerates.
//
// Exactly one output is produced per successful call. The context is
// consulted between stages; an already-running codec operation is not
// interrupted.
func (n *Normalizer) Normalize(ctx context.Context, src File, maxDimension int) (File, error) {
	if err := ctx.Err(); err != nil {
		return File{}, err
	}

	raster, err := n.codec.Decode(src.Data)
	if err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	w, h := raster.Width(), raster.Height()
	if w < 1 || h < 1 {
		return File{}, fmt.Errorf("%w: source raster is %dx%d", ErrEncode, w, h)
	}

	if longest := max(w, h); longest > maxDimension {
		scale := float64(maxDimension) / float64(longest)
		tw := int(math.Round(float64(w) * scale))
		th := int(math.Round(float64(h) * scale))
		if tw < 1 && th < 1 {
			return File{}, fmt.Errorf("%w: degenerate %dx%d target for max dimension %d", ErrEncode, tw, th, maxDimension)
		}
		// Extreme aspect ratios can round the short side to zero.
		tw = max(tw, 1)
		th = max(th, 1)

		if err := ctx.Err(); err != nil {
			return File{}, err
		}
		raster, err = n.codec.Resample(raster, tw, th)
		if err != nil {
			return File{}, fmt.Errorf("%w: resample to %dx%d: %v", ErrEncode, tw, th, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return File{}, err
	}
	data, err := n.codec.Encode(raster, OutputFormat, OutputQuality)
	if err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	return File{
		Name:     src.Name,
		MIME:     OutputMIME,
		Data:     data,
		Modified: time.Now().UTC(),
	}, nil
}
