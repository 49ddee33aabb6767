package sink

import (
	"context"

	"github.com/hazyhaar/favisync/snapshot"
)

// SnapshotFunc is called for each published snapshot.
type SnapshotFunc func(ctx context.Context, snap snapshot.Snapshot) error

// Callback delivers snapshots via a Go function call, zero serialisation.
type Callback struct {
	fn SnapshotFunc
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn SnapshotFunc) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Publish(ctx context.Context, snap snapshot.Snapshot) error {
	if c.fn != nil {
		return c.fn(ctx, snap)
	}
	return nil
}

func (c *Callback) Close() error { return nil }

// Func adapts a plain resource callback, the way a UI host sets a favicon
// href.
type Func func(resource string)

func (f Func) Publish(_ context.Context, snap snapshot.Snapshot) error {
	f(snap.Resource)
	return nil
}

func (f Func) Close() error { return nil }
