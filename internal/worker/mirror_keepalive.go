package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Toucher renews a TTL-bound resource.
type Toucher interface {
	Touch(ctx context.Context) error
}

// StartMirrorKeepalive renews the presence mirror every interval until ctx is
// done. The returned channel closes when the loop exits.
func StartMirrorKeepalive(ctx context.Context, target Toucher, interval time.Duration, logger *zap.Logger) <-chan struct{} {
	if logger == nil {
		logger = zap.NewNop()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := target.Touch(ctx); err != nil && ctx.Err() == nil {
					logger.Debug("presence mirror keepalive failed", zap.Error(err))
				}
			}
		}
	}()
	return done
}
