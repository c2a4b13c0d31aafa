package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const retryAttempts = 3

// withRetry runs op up to three times, backing off 0.5s, 1s, 2s after each
// failure that transient reports as recoverable. Other errors, and the last
// transient one, surface to the caller.
func withRetry(ctx context.Context, log *zap.Logger, name string, transient func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !transient(lastErr) {
			return lastErr
		}
		wait := 500 * time.Millisecond << uint(attempt)
		log.Warn("store reconnect",
			zap.String("op", name),
			zap.Duration("wait", wait),
			zap.Error(lastErr))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
