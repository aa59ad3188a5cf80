package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reconciler retries ledger writes that failed while connections came and went.
type Reconciler interface {
	Reconcile(ctx context.Context) int
	Pending() []string
}

// PresenceReconciler drives a Reconciler on a fixed interval.
type PresenceReconciler struct {
	target   Reconciler
	interval time.Duration
	logger   *zap.Logger
}

// NewPresenceReconciler builds the worker. A non-positive interval defaults to 30s.
func NewPresenceReconciler(target Reconciler, interval time.Duration, logger *zap.Logger) *PresenceReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &PresenceReconciler{target: target, interval: interval, logger: logger.Named("reconciler")}
}

// Start runs the loop in a goroutine. The returned channel closes once ctx is done
// and the last pass has returned.
func (r *PresenceReconciler) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	return done
}

// Run blocks until ctx is cancelled.
func (r *PresenceReconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *PresenceReconciler) tick(ctx context.Context) {
	pending := len(r.target.Pending())
	if pending == 0 {
		return
	}
	settled := r.target.Reconcile(ctx)
	if settled < pending {
		r.logger.Warn("presence reconcile incomplete", zap.Int("pending", pending), zap.Int("settled", settled))
		return
	}
	r.logger.Info("presence reconciled", zap.Int("settled", settled))
}
