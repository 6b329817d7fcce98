package domain

import "time"

// UsageLog records the cost of one successfully served transform request.
type UsageLog struct {
	RequestID       string
	ImageAddress    string
	Format          ImageFormat
	InputBytes      int64
	OutputBytes     int64
	PixelsProcessed int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}
