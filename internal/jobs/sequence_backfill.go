package jobs

import (
	"context"
	"log/slog"
	"time"

	"classdeck/roster/internal/config"
	"classdeck/roster/internal/repository"
)

// StartSequenceBackfillJob periodically assigns sequence numbers to students
// that were attached to a class before the lazy assignment ran (imports from
// older data paths leave those behind).
func StartSequenceBackfillJob(ctx context.Context, cfg config.Config, store *repository.Store) {
	if !cfg.SequenceBackfillEnabled {
		return
	}
	interval := cfg.SequenceBackfillInterval
	if interval <= 0 {
		interval = time.Minute
	}
	timeout := cfg.SequenceBackfillTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, timeout)
				assigned, err := store.BackfillSequenceNumbers(tickCtx)
				cancel()
				if err != nil {
					slog.Error("sequence backfill error", "error", err)
					continue
				}
				if assigned > 0 {
					slog.Info("sequence backfill assigned numbers", "students", assigned)
				}
			}
		}
	}()
}
