// Package scheduler runs periodic background sync passes.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lukasbrandt/advisory-backend/internal/reconcile"
)

// Start kicks off the periodic sync loop. Ticks that land while a manual
// sync is running are skipped, not queued. Close the done channel to stop.
func Start(orchestrator *reconcile.Orchestrator, interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		slog.Info("sync scheduler started", "interval", interval)
		for {
			select {
			case <-ticker.C:
				run(orchestrator)
			case <-done:
				slog.Info("sync scheduler stopped")
				return
			}
		}
	}()
}

func run(orchestrator *reconcile.Orchestrator) {
	result, err := orchestrator.Sync(context.Background(), reconcile.Options{
		Trigger: reconcile.TriggerScheduled,
	})
	if err != nil {
		if errors.Is(err, reconcile.ErrSyncAlreadyRunning) {
			slog.Info("scheduled sync skipped, another sync in flight")
			return
		}
		slog.Error("scheduled sync failed", "error", err)
		return
	}
	slog.Info("scheduled sync completed", "duration", result.Duration, "partial", result.Partial)
}
