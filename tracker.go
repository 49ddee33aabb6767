package favisync

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/favisync/dom"
	"github.com/hazyhaar/favisync/internal/resolve"
	"github.com/hazyhaar/favisync/internal/stylesheet"
	"github.com/hazyhaar/favisync/internal/watchset"
	"github.com/hazyhaar/favisync/snapshot"
)

// ErrAlreadyStarted is returned by Start on an active Tracker.
var ErrAlreadyStarted = errors.New("favisync: tracker already started")

// State of a Tracker.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Tracker mirrors one element of a document into a favicon.
//
// All transitions run under the Tracker mutex, publishes included: a
// Publisher must not call back into its Tracker.
type Tracker struct {
	doc       *dom.Document
	root      *html.Node
	pub       Publisher
	logger    *slog.Logger
	dims      snapshot.Dimensions
	resolver  *resolve.Resolver
	fetcher   *stylesheet.Fetcher
	dedup     DedupMode
	republish bool
	sanitizer snapshot.Sanitizer
	debounce  time.Duration

	// cancelMu guards cancel only, so Stop can abort an in-flight publish
	// without waiting for mu.
	cancelMu sync.Mutex
	cancel   context.CancelFunc

	mu         sync.Mutex
	state      State
	generation uint64
	ctx        context.Context
	watches    *watchset.Set
	loaded     chan struct{}
	timer      *time.Timer
	forceNext  bool

	relevantStyles   []*html.Node
	styleTexts       []string
	staticLayer      string
	previousMarkup   string
	previousResource string
	published        bool

	last    snapshot.Snapshot
	hasLast bool
}

// New creates an idle Tracker for root, an element of doc. root may be nil
// when the content is not mounted yet: Start is then a no-op.
func New(doc *dom.Document, root *html.Node, pub Publisher, opts ...Option) *Tracker {
	o := options{
		logger:    slog.Default(),
		dims:      snapshot.DefaultDimensions,
		republish: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	fopts := []stylesheet.Option{
		stylesheet.WithLogger(o.logger),
		stylesheet.WithBase(o.base),
		stylesheet.WithPartial(o.partial),
	}
	if o.client != nil {
		fopts = append(fopts, stylesheet.WithClient(o.client))
	}
	if o.userAgent != "" {
		fopts = append(fopts, stylesheet.WithUserAgent(o.userAgent))
	}

	loaded := make(chan struct{})
	close(loaded)

	return &Tracker{
		doc:       doc,
		root:      root,
		pub:       pub,
		logger:    o.logger,
		dims:      o.dims.OrDefault(),
		resolver:  resolve.New(o.matcher),
		fetcher:   stylesheet.New(fopts...),
		dedup:     o.dedup,
		republish: o.republish,
		sanitizer: o.sanitizer,
		debounce:  o.debounce,
		watches:   watchset.New(doc),
		loaded:    loaded,
	}
}

// Start resolves the relevant styles, watches the head, every relevant
// style and the root, launches the stylesheet fetch and publishes the first
// snapshot. A missing or detached root leaves the Tracker idle and returns
// nil.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == Active {
		return ErrAlreadyStarted
	}
	if t.root == nil || !t.doc.Contains(t.root) {
		t.logger.Debug("favisync: tracked root not mounted, start skipped")
		return nil
	}

	t.generation++
	var cancel context.CancelFunc
	t.ctx, cancel = context.WithCancel(ctx)
	t.cancelMu.Lock()
	t.cancel = cancel
	t.cancelMu.Unlock()
	t.state = Active

	if head := t.doc.Head(); head != nil {
		t.watches.EnsureWatching(head, t.onHeadMutation)
	}
	t.resolveLocked()
	t.watches.EnsureWatching(t.root, t.onRootMutation)

	t.loaded = make(chan struct{})
	hrefs := t.doc.StylesheetLinks()
	if len(hrefs) == 0 {
		close(t.loaded)
	} else {
		go t.fetchStylesheets(t.ctx, t.generation, hrefs, t.loaded)
	}

	t.logger.Info("favisync: started",
		"styles", len(t.relevantStyles), "stylesheets", len(hrefs),
		"watches", t.watches.Len(), "dedup", t.dedup.String())

	t.publishLocked(t.ctx, false)
	return nil
}

// Stop cancels every subscription and discards the derived state. A pending
// stylesheet fetch completes as a no-op. The context of an in-flight publish
// is cancelled before Stop waits for it. Stop on an idle Tracker does
// nothing.
func (t *Tracker) Stop() {
	t.cancelRun()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Active {
		return
	}
	t.cancelRun()
	released := t.watches.TeardownAll()
	t.generation++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.state = Idle
	t.forceNext = false
	t.relevantStyles, t.styleTexts = nil, nil
	t.staticLayer = ""
	t.previousMarkup, t.previousResource, t.published = "", "", false

	t.logger.Info("favisync: stopped", "released", released)
}

// cancelRun cancels the context of the current start. Safe without mu.
func (t *Tracker) cancelRun() {
	t.cancelMu.Lock()
	defer t.cancelMu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// Refresh re-serializes and publishes when the snapshot changed, for hosts
// that mutate the tree outside the document API.
func (t *Tracker) Refresh(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Active {
		return
	}
	t.resolveLocked()
	t.publishLocked(ctx, false)
}

// onHeadMutation handles any change under <head>: styles may have been
// added, removed or edited.
func (t *Tracker) onHeadMutation(records []dom.Record) {
	t.react("head", records)
}

// onStyleMutation handles a change inside a relevant <style>.
func (t *Tracker) onStyleMutation(records []dom.Record) {
	t.react("style", records)
}

// onRootMutation handles a change of the tracked content. Class names may
// have changed, so styles are resolved again.
func (t *Tracker) onRootMutation(records []dom.Record) {
	t.react("root", records)
}

func (t *Tracker) react(source string, records []dom.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Active {
		return
	}
	t.logger.Debug("favisync: mutation", "source", source, "records", len(records))
	t.resolveLocked()
	t.changedLocked(false)
}

// resolveLocked recomputes the relevant styles, watches the new ones and
// releases the ones that no longer apply or left the document.
func (t *Tracker) resolveLocked() {
	res := t.resolver.Resolve(t.doc, t.root)

	for _, st := range res.Styles {
		if t.watches.EnsureWatching(st, t.onStyleMutation) {
			t.logger.Debug("favisync: watching style", "watches", t.watches.Len())
		}
	}
	for _, st := range t.relevantStyles {
		if !slices.Contains(res.Styles, st) && t.watches.Release(st) {
			t.logger.Debug("favisync: released style", "watches", t.watches.Len())
		}
	}
	t.relevantStyles, t.styleTexts = res.Styles, res.Texts
}

// changedLocked publishes now, or at the end of the debounce window.
func (t *Tracker) changedLocked(force bool) {
	if t.debounce <= 0 {
		t.publishLocked(t.ctx, force)
		return
	}
	t.forceNext = t.forceNext || force
	if t.timer != nil {
		return
	}
	gen := t.generation
	t.timer = time.AfterFunc(t.debounce, func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		if t.state != Active || t.generation != gen {
			return
		}
		t.timer = nil
		force := t.forceNext
		t.forceNext = false
		t.publishLocked(t.ctx, force)
	})
}

// publishLocked serializes the root and publishes it unless it duplicates
// the last successfully published snapshot. force skips the duplicate
// check. Empty markup and a root detached from the document are never
// published.
func (t *Tracker) publishLocked(ctx context.Context, force bool) {
	if !t.doc.Contains(t.root) {
		t.logger.Debug("favisync: tracked root detached, publish skipped")
		return
	}
	markup := t.markupLocked()
	if markup == "" {
		return
	}
	if !force && t.published && t.dedup == DedupMarkup && markup == t.previousMarkup {
		return
	}

	snap := snapshot.Build(snapshot.Input{
		Markup:      markup,
		Styles:      t.styleTexts,
		StaticLayer: t.staticLayer,
		Dimensions:  t.dims,
	})
	if !force && t.published && t.dedup == DedupResource && snap.Resource == t.previousResource {
		return
	}

	t.last, t.hasLast = snap, true

	if err := t.pub.Publish(ctx, snap); err != nil {
		t.logger.Warn("favisync: publish failed", "id", snap.ID, "error", err)
		return
	}
	t.previousMarkup, t.previousResource, t.published = markup, snap.Resource, true
	t.logger.Debug("favisync: published", "id", snap.ID, "hash", snap.MarkupHash, "forced", force)
}

func (t *Tracker) markupLocked() string {
	var markup string
	t.doc.View(func() { markup = dom.RenderXHTML(t.root) })
	if t.sanitizer != nil && markup != "" {
		markup = sanitizeXHTML(t.sanitizer, markup)
	}
	return markup
}

// sanitizeXHTML runs s over markup and renders its HTML output back to
// XHTML.
func sanitizeXHTML(s snapshot.Sanitizer, markup string) string {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(s.Sanitize(markup)), ctx)
	if err != nil {
		return ""
	}
	var sb strings.Builder
	for _, n := range nodes {
		sb.WriteString(dom.RenderXHTML(n))
	}
	return sb.String()
}

func (t *Tracker) fetchStylesheets(ctx context.Context, gen uint64, hrefs []string, done chan struct{}) {
	defer close(done)
	layer, err := t.fetcher.FetchAll(ctx, hrefs)
	t.onStylesheetFetchComplete(gen, layer, err)
}

// onStylesheetFetchComplete stores the static layer of the start identified
// by gen and, unless disabled, publishes it right away.
func (t *Tracker) onStylesheetFetchComplete(gen uint64, layer string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Active || t.generation != gen {
		t.logger.Debug("favisync: stylesheet result discarded, tracker restarted or stopped")
		return
	}
	if err != nil {
		t.logger.Warn("favisync: stylesheet fetch failed, static layer left empty", "error", err)
		return
	}
	t.staticLayer = layer
	t.logger.Info("favisync: static layer loaded", "bytes", len(layer))

	if layer != "" && t.republish {
		t.changedLocked(true)
	}
}

// State reports whether the Tracker is observing.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// RelevantStyles returns the <style> elements of the last resolution.
func (t *Tracker) RelevantStyles() []*html.Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.relevantStyles)
}

// StaticLayer returns the fetched stylesheet text, empty until the fetch
// completes.
func (t *Tracker) StaticLayer() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.staticLayer
}

// StylesheetsLoaded is closed once the stylesheet fetch of the current
// start has been handled. It is closed already when idle.
func (t *Tracker) StylesheetsLoaded() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded
}

// Watching reports whether n has an active subscription.
func (t *Tracker) Watching(n *html.Node) bool {
	return t.watches.Watching(n)
}

// WatchCount returns the number of active subscriptions.
func (t *Tracker) WatchCount() int {
	return t.watches.Len()
}

// Last returns the most recently published snapshot. It survives Stop.
func (t *Tracker) Last() (snapshot.Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.hasLast
}
