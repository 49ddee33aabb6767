// Package hostwatch keeps a live document in sync with an HTML page on
// disk. File events are debounced; a page change is reconciled into the
// document, a stylesheet change asks the host to restart tracking.
package hostwatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config controls a Watcher.
type Config struct {
	// Page is the HTML file reconciled into the document.
	Page string
	// Stylesheets are local stylesheet files linked by the page.
	Stylesheets []string
	// Window is the debounce time. Default: 100ms.
	Window time.Duration
	// MaxBuffer flushes immediately when this many events accumulate.
	// Default: 1000.
	MaxBuffer int
	Logger    *slog.Logger
}

// Handlers are called on the Run goroutine after each debounced batch.
type Handlers struct {
	// Page is called when the page file changed.
	Page func(ctx context.Context) error
	// Stylesheets is called when a linked local stylesheet changed.
	Stylesheets func(ctx context.Context) error
}

type kind int

const (
	kindPage kind = iota + 1
	kindStylesheet
)

// Watcher watches the directories holding the page and its stylesheets, so
// editors that save by rename are seen too.
type Watcher struct {
	cfg      Config
	handlers Handlers
	fsw      *fsnotify.Watcher
	files    map[string]kind
	logger   *slog.Logger
}

// New creates a Watcher. Call Run to start delivering.
func New(cfg Config, h Handlers) (*Watcher, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("hostwatch: fsnotify: %w", err)
	}
	w := &Watcher{
		cfg:      cfg,
		handlers: h,
		fsw:      fsw,
		files:    make(map[string]kind),
		logger:   logger,
	}

	if err := w.add(cfg.Page, kindPage); err != nil {
		fsw.Close()
		return nil, err
	}
	for _, s := range cfg.Stylesheets {
		if err := w.add(s, kindStylesheet); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) add(path string, k kind) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("hostwatch: %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("hostwatch: %w", err)
	}
	dir := filepath.Dir(abs)
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("hostwatch: watch %s: %w", dir, err)
	}
	w.files[abs] = k
	w.logger.Debug("hostwatch: watching", "file", abs, "dir", dir)
	return nil
}

// Run delivers debounced changes until ctx is cancelled. Handler errors
// are logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	deb := newDebouncer(w.cfg.Window, w.cfg.MaxBuffer, func(events []fsnotify.Event) {
		w.dispatch(ctx, events)
	})

	w.logger.Info("hostwatch: started", "files", len(w.files))
	for {
		select {
		case <-ctx.Done():
			deb.flush()
			w.logger.Info("hostwatch: stopped")
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if _, tracked := w.files[filepath.Clean(ev.Name)]; !tracked {
				continue
			}
			deb.add(ev)

		case <-deb.timerC():
			deb.flush()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("hostwatch: fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) dispatch(ctx context.Context, events []fsnotify.Event) {
	var page, sheets bool
	for _, ev := range events {
		switch w.files[filepath.Clean(ev.Name)] {
		case kindPage:
			page = true
		case kindStylesheet:
			sheets = true
		}
	}
	w.logger.Debug("hostwatch: batch", "events", len(events), "page", page, "stylesheets", sheets)

	// The page goes first so a restart sees its current links.
	if page && w.handlers.Page != nil {
		if err := w.handlers.Page(ctx); err != nil {
			w.logger.Warn("hostwatch: page handler failed", "error", err)
		}
	}
	if sheets && w.handlers.Stylesheets != nil {
		if err := w.handlers.Stylesheets(ctx); err != nil {
			w.logger.Warn("hostwatch: stylesheet handler failed", "error", err)
		}
	}
}

// Close releases the fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
