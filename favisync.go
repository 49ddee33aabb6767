// Package favisync renders a piece of live HTML content into a favicon and
// keeps the favicon synchronized with the content as it mutates.
//
// A Tracker observes one element of a dom.Document. It resolves the head
// <style> elements relevant to the element's class names, watches the
// element, the head and every relevant style, and on each delivered change
// serializes the element and its styles into an SVG data URI published to
// a Publisher. Linked stylesheets are fetched once per start and embedded
// as a static layer.
//
//	doc, _ := dom.ParseString(page)
//	root, _ := doc.QuerySelector("#favicon")
//	tr := favisync.New(doc, root, favisync.PublishFunc(func(href string) { ... }))
//	tr.Start(ctx)
//	defer tr.Stop()
//	// mutate doc, then doc.Flush() delivers the changes.
package favisync

import (
	"context"
	"io"
	"log/slog"

	"github.com/hazyhaar/favisync/internal/config"
	"github.com/hazyhaar/favisync/internal/resolve"
	"github.com/hazyhaar/favisync/internal/sink"
	"github.com/hazyhaar/favisync/snapshot"
)

// Publisher receives every published snapshot.
type Publisher = sink.Publisher

// Snapshot is one published favicon.
type Snapshot = snapshot.Snapshot

// Dimensions of the favicon viewport.
type Dimensions = snapshot.Dimensions

// Matcher decides whether a style text applies to a set of class names.
type Matcher = resolve.Matcher

// Config is the YAML configuration. Re-exported from internal.
type Config = config.Config

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// SubstringMatcher keeps a style when its text contains ".<class>".
func SubstringMatcher() Matcher { return resolve.Substring }

// SelectorMatcher parses style texts and keeps a style when one of its rule
// selectors names a class of the tracked subtree.
func SelectorMatcher() Matcher { return resolve.Selectors{} }

// PublishFunc adapts a plain callback receiving the favicon resource.
type PublishFunc = sink.Func

// NewCallbackSink delivers snapshots to fn, zero serialisation.
func NewCallbackSink(fn func(ctx context.Context, snap Snapshot) error) Publisher {
	return sink.NewCallback(fn)
}

// NewStdoutSink writes JSON lines to w (os.Stdout when nil).
func NewStdoutSink(w io.Writer) Publisher {
	return sink.NewStdout(w)
}

// NewWebhookSink POSTs every snapshot as JSON, with retry.
func NewWebhookSink(url string, logger *slog.Logger) Publisher {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewFileSink writes the SVG document to path on every publish.
func NewFileSink(path string) Publisher {
	return sink.NewFile(path)
}

// NewRouter fans out to every publisher.
func NewRouter(logger *slog.Logger, sinks ...Publisher) Publisher {
	return sink.NewRouter(logger, sinks...)
}

// OpenHistory opens (or creates) an SQLite favicon history at path.
func OpenHistory(path string) (*sink.History, error) {
	return sink.OpenHistory(path)
}

// Decode returns the SVG document of a favicon resource.
func Decode(resource string) (string, error) {
	return snapshot.Decode(resource)
}
