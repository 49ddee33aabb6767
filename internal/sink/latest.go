package sink

import (
	"context"
	"sync"

	"github.com/hazyhaar/favisync/snapshot"
)

// Latest keeps the most recent snapshot in memory, for readers such as the
// HTTP server.
type Latest struct {
	mu   sync.RWMutex
	snap snapshot.Snapshot
	ok   bool
}

// NewLatest creates an empty Latest sink.
func NewLatest() *Latest { return &Latest{} }

func (l *Latest) Publish(_ context.Context, snap snapshot.Snapshot) error {
	l.mu.Lock()
	l.snap, l.ok = snap, true
	l.mu.Unlock()
	return nil
}

// Get returns the last published snapshot.
func (l *Latest) Get() (snapshot.Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap, l.ok
}

func (l *Latest) Close() error { return nil }
