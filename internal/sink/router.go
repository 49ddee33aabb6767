package sink

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/favisync/snapshot"
)

// Router fans out snapshots to all configured publishers. One failure does
// not block the others: errors are logged and the first one is returned.
type Router struct {
	sinks  []Publisher
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all publishers.
func NewRouter(logger *slog.Logger, sinks ...Publisher) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Add appends a publisher. Not safe to call while publishing.
func (r *Router) Add(p Publisher) {
	r.sinks = append(r.sinks, p)
}

// Len returns the number of publishers.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) Publish(ctx context.Context, snap snapshot.Snapshot) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Publish(ctx, snap); err != nil {
			r.logger.Warn("sink: publish failed", "id", snap.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
