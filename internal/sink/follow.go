package sink

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/favisync/internal/dbwatch"
)

// Follow publishes the newest history row to dst, now and every time
// another process appends one, until ctx is cancelled. The returned
// Watcher exposes poll statistics.
func Follow(ctx context.Context, h *History, dst Publisher, interval time.Duration, logger *slog.Logger) *dbwatch.Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := dbwatch.New(h.DB(), dbwatch.Options{
		Interval: interval,
		Detector: dbwatch.MaxColumnDetector("favicons", "created_at"),
		Logger:   logger,
	})
	if err := w.Sync(ctx); err != nil {
		logger.Warn("history: version check failed", "error", err)
	}

	load := func() error {
		recent, err := h.Recent(ctx, 1)
		if err != nil || len(recent) == 0 {
			return err
		}
		return dst.Publish(ctx, recent[0])
	}
	if err := load(); err != nil {
		logger.Warn("history: initial load failed", "error", err)
	}
	go w.OnChange(ctx, load)
	return w
}
