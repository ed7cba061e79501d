package postgres

import (
	"context"
	"time"
)

// withTimeout bounds a single store operation against the configured
// database operation timeout. A zero timeout leaves the caller's context
// untouched. Deadline hits surface as store.ErrUnavailable through
// mapError.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
