package browser

import (
	"context"
	"time"

	"github.com/hazyhaar/favisync/snapshot"
)

// FaviconSetter is the part of a Tab the Injector needs.
type FaviconSetter interface {
	SetFavicon(ctx context.Context, resource string) error
}

// Injector publishes snapshots into a browser tab as its favicon.
type Injector struct {
	tab     FaviconSetter
	timeout time.Duration
}

// NewInjector creates an Injector writing to tab.
func NewInjector(tab FaviconSetter) *Injector {
	return &Injector{tab: tab, timeout: 10 * time.Second}
}

func (i *Injector) Publish(ctx context.Context, snap snapshot.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()
	return i.tab.SetFavicon(ctx, snap.Resource)
}

func (i *Injector) Close() error { return nil }
