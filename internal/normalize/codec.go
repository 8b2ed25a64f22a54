package normalize

import "strings"

// Raster is a decoded pixel buffer with known dimensions. Concrete
// representations belong to the codec that produced them; a raster is
// scoped to a single normalization call and must not be retained.
type Raster interface {
	Width() int
	Height() int
}

// Codec abstracts raster decoding, resampling and re-encoding so the
// normalizer can run against either the pure-Go image stack or libvips,
// and against fakes in tests. Implementations must be safe for
// concurrent use; the rasters they return need not be.
type Codec interface {
	Decode(data []byte) (Raster, error)
	Resample(r Raster, width, height int) (Raster, error)
	Encode(r Raster, format string, quality int) ([]byte, error)
}

func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "jpg" {
		return "jpeg"
	}
	return format
}
