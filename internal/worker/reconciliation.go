package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quickcart/internal/infrastructure/payment"
	"quickcart/internal/service"
)

// ReconciliationWorker periodically asks the card processor for recently
// completed sessions and records any that never produced an order, which
// covers webhooks that were lost or exhausted their retries.
type ReconciliationWorker struct {
	processor  payment.CardProcessor
	reconciler service.WebhookService
	interval   time.Duration
	lookback   time.Duration
	now        func() time.Time
}

func NewReconciliationWorker(
	processor payment.CardProcessor,
	reconciler service.WebhookService,
	interval time.Duration,
	lookback time.Duration,
) *ReconciliationWorker {
	return &ReconciliationWorker{
		processor:  processor,
		reconciler: reconciler,
		interval:   interval,
		lookback:   lookback,
		now:        time.Now,
	}
}

func (rw *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	slog.Info("reconciliation worker started", "interval", rw.interval, "lookback", rw.lookback)
	defer slog.Info("reconciliation worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rw.Sweep(ctx); err != nil {
				slog.Error("reconciliation sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs one pass and returns how many orders it recovered. A session
// that fails is logged and left for the next pass.
func (rw *ReconciliationWorker) Sweep(ctx context.Context) (int, error) {
	sessions, err := rw.processor.CompletedSessions(ctx, rw.now().Add(-rw.lookback))
	if err != nil {
		return 0, fmt.Errorf("processor.CompletedSessions: %w", err)
	}

	recovered, failed := 0, 0
	for _, sess := range sessions {
		if ctx.Err() != nil {
			return recovered, ctx.Err()
		}
		if !sess.Paid() {
			continue
		}

		created, err := rw.reconciler.ReconcileSession(ctx, sess)
		if err != nil {
			failed++
			slog.Warn("session reconciliation failed", "session_id", sess.ID, "error", err)
			continue
		}
		if created {
			recovered++
			slog.Info("recovered order for unacknowledged session", "session_id", sess.ID)
		}
	}

	if recovered > 0 || failed > 0 {
		slog.Info("reconciliation sweep finished",
			"sessions", len(sessions),
			"recovered", recovered,
			"failed", failed)
	}
	return recovered, nil
}
