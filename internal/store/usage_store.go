package store

import (
	"context"

	"github.com/pixelgate/pixelgate/internal/domain"
)

// UsageStore persists per-request accounting records. Writes happen after
// the response is sent; a failing store must never fail a request.
type UsageStore interface {
	CreateUsageLog(ctx context.Context, usage domain.UsageLog) error
}
