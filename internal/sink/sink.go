// Package sink defines the publishers receiving favicon snapshots.
package sink

import (
	"context"

	"github.com/hazyhaar/favisync/snapshot"
)

// Publisher delivers snapshots to a backend (in-process callback, stdout,
// webhook, file, SQLite history, browser tab).
type Publisher interface {
	Publish(ctx context.Context, snap snapshot.Snapshot) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
