package domain

import "time"

// UsageLog records what one successful normalization cost and saved.
// BytesSaved is the compression win: source bytes minus output bytes,
// clamped at zero.
type UsageLog struct {
	UserID          string
	ReceiptID       string
	PixelsProcessed int64
	BytesSaved      int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}
