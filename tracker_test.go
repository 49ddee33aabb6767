package favisync

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/favisync/dom"
	"github.com/hazyhaar/favisync/snapshot"
)

type recorder struct {
	mu    sync.Mutex
	snaps []snapshot.Snapshot
	err   error
}

func (r *recorder) Publish(_ context.Context, s snapshot.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
	return r.err
}

func (r *recorder) Close() error { return nil }

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) decoded(t *testing.T, i int) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 {
		i += len(r.snaps)
	}
	doc, err := snapshot.Decode(r.snaps[i].Resource)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

var quiet = slog.New(slog.DiscardHandler)

const page = `<html><head><style>.x{color:red}</style></head>` +
	`<body><div id="root" class="x">hi</div></body></html>`

func setup(t *testing.T, markup string, opts ...Option) (*dom.Document, *html.Node, *recorder, *Tracker) {
	t.Helper()
	doc, err := dom.ParseString(markup)
	if err != nil {
		t.Fatal(err)
	}
	root, err := doc.QuerySelector("#root")
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	tr := New(doc, root, rec, append([]Option{WithLogger(quiet)}, opts...)...)
	t.Cleanup(tr.Stop)
	return doc, root, rec, tr
}

func start(t *testing.T, tr *Tracker) {
	t.Helper()
	if err := tr.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func waitLoaded(t *testing.T, tr *Tracker) {
	t.Helper()
	select {
	case <-tr.StylesheetsLoaded():
	case <-time.After(5 * time.Second):
		t.Fatal("stylesheet fetch did not complete")
	}
}

func TestStart_PublishesRootWithRelevantStyle(t *testing.T) {
	doc, _, rec, tr := setup(t, page)
	start(t, tr)

	styles := tr.RelevantStyles()
	if len(styles) != 1 || styles[0] != doc.HeadStyles()[0] {
		t.Fatalf("RelevantStyles: got %v", styles)
	}
	if rec.count() != 1 {
		t.Fatalf("publish count: got %d, want 1", rec.count())
	}
	body := rec.decoded(t, 0)
	if !strings.Contains(body, "color:red") || !strings.Contains(body, "hi") {
		t.Fatalf("first snapshot missing style or content: %s", body)
	}
	if tr.State() != Active {
		t.Errorf("State: got %s, want active", tr.State())
	}
	// head, style and root
	if tr.WatchCount() != 3 {
		t.Errorf("WatchCount: got %d, want 3", tr.WatchCount())
	}
}

func TestStart_Twice(t *testing.T) {
	_, _, _, tr := setup(t, page)
	start(t, tr)
	if err := tr.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start: got %v, want ErrAlreadyStarted", err)
	}
}

func TestStart_MissingRoot(t *testing.T) {
	doc, err := dom.ParseString(page)
	if err != nil {
		t.Fatal(err)
	}
	for name, root := range map[string]*html.Node{
		"nil":      nil,
		"detached": dom.NewElement("div"),
	} {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{}
			tr := New(doc, root, rec, WithLogger(quiet))
			if err := tr.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}
			tr.Refresh(context.Background())
			if tr.State() != Idle || rec.count() != 0 || tr.WatchCount() != 0 {
				t.Fatalf("missing root should be a no-op: state=%s publishes=%d watches=%d",
					tr.State(), rec.count(), tr.WatchCount())
			}
		})
	}
}

func TestHeadMutation_IrrelevantStyleIgnored(t *testing.T) {
	doc, _, rec, tr := setup(t, page)
	start(t, tr)

	y := dom.NewStyle(".y{color:blue}")
	doc.AppendChild(doc.Head(), y)
	doc.Flush()

	if len(tr.RelevantStyles()) != 1 {
		t.Errorf("RelevantStyles: got %d, want 1", len(tr.RelevantStyles()))
	}
	if tr.Watching(y) {
		t.Error("irrelevant style should not be watched")
	}
	if rec.count() != 1 {
		t.Errorf("publish count: got %d, want 1", rec.count())
	}
}

func TestHeadMutation_NewRelevantStyleWatched(t *testing.T) {
	doc, _, rec, tr := setup(t, page, WithDedup(DedupResource))
	start(t, tr)

	st := dom.NewStyle(".x{border:0}")
	doc.AppendChild(doc.Head(), st)
	doc.Flush()

	if !tr.Watching(st) {
		t.Fatal("new relevant style should be watched")
	}
	if rec.count() != 2 || !strings.Contains(rec.decoded(t, -1), "border:0") {
		t.Fatalf("style addition not published (count %d)", rec.count())
	}

	doc.SetTextContent(st, ".x{border:1px}")
	doc.Flush()
	if rec.count() != 3 || !strings.Contains(rec.decoded(t, -1), "border:1px") {
		t.Fatalf("style edit not published (count %d)", rec.count())
	}
}

func TestDedup_MarkupOnly(t *testing.T) {
	doc, _, rec, tr := setup(t, page)
	start(t, tr)

	doc.SetTextContent(doc.HeadStyles()[0], ".x{color:blue}")
	doc.Flush()
	if rec.count() != 1 {
		t.Fatalf("style-only change with identical markup: got %d publishes, want 1", rec.count())
	}
}

func TestDedup_Resource(t *testing.T) {
	doc, _, rec, tr := setup(t, page, WithDedup(DedupResource))
	start(t, tr)

	doc.SetTextContent(doc.HeadStyles()[0], ".x{color:blue}")
	doc.Flush()
	if rec.count() != 2 || !strings.Contains(rec.decoded(t, 1), "color:blue") {
		t.Fatalf("resource dedup should publish style changes (count %d)", rec.count())
	}
}

func TestRootMutation(t *testing.T) {
	doc, root, rec, tr := setup(t, page)
	start(t, tr)

	doc.SetTextContent(root, "bye")
	doc.Flush()
	if rec.count() != 2 || !strings.Contains(rec.decoded(t, 1), "bye") {
		t.Fatalf("text change not published (count %d)", rec.count())
	}

	// Same value: a record is delivered but the markup is unchanged.
	doc.SetAttr(root, "class", "x")
	doc.Flush()
	if rec.count() != 2 {
		t.Fatalf("unchanged markup republished (count %d)", rec.count())
	}
}

func TestRootMutation_ClassChangeSwitchesStyles(t *testing.T) {
	doc, root, rec, tr := setup(t, `<html><head><style>.x{color:red}</style><style>.y{color:blue}</style></head>`+
		`<body><div id="root" class="x">hi</div></body></html>`)
	start(t, tr)
	styles := doc.HeadStyles()

	doc.SetAttr(root, "class", "y")
	doc.Flush()

	got := tr.RelevantStyles()
	if len(got) != 1 || got[0] != styles[1] {
		t.Fatalf("RelevantStyles after class change: %v", got)
	}
	if tr.Watching(styles[0]) || !tr.Watching(styles[1]) {
		t.Error("watches should follow the relevant set")
	}
	body := rec.decoded(t, -1)
	if !strings.Contains(body, "color:blue") || strings.Contains(body, "color:red") {
		t.Errorf("published styles: %s", body)
	}
}

func TestStaleStylePruned(t *testing.T) {
	doc, _, rec, tr := setup(t, page)
	start(t, tr)
	st := doc.HeadStyles()[0]

	doc.RemoveChild(doc.Head(), st)
	doc.Flush()

	if len(tr.RelevantStyles()) != 0 {
		t.Error("removed style still relevant")
	}
	if tr.Watching(st) {
		t.Error("removed style still watched")
	}
	if rec.count() != 1 {
		t.Errorf("publish count: got %d, want 1", rec.count())
	}
}

func TestStop_TearsDownEveryWatch(t *testing.T) {
	doc, root, rec, tr := setup(t, page)
	start(t, tr)
	head := doc.Head()
	st := doc.HeadStyles()[0]

	late := dom.NewStyle(".x{margin:0}")
	doc.AppendChild(head, late)
	doc.Flush()
	if !tr.Watching(late) || tr.WatchCount() != 4 {
		t.Fatalf("late style not watched (watches %d)", tr.WatchCount())
	}
	before := rec.count()

	tr.Stop()
	if tr.State() != Idle || tr.WatchCount() != 0 {
		t.Fatalf("after Stop: state=%s watches=%d", tr.State(), tr.WatchCount())
	}

	doc.SetTextContent(root, "changed")
	doc.SetTextContent(st, ".x{color:green}")
	doc.SetTextContent(late, ".x{margin:1px}")
	doc.AppendChild(head, dom.NewStyle(".x{padding:0}"))
	doc.Flush()

	if rec.count() != before {
		t.Fatalf("publish after Stop: %d -> %d", before, rec.count())
	}
	if doc.Pending() != 0 {
		t.Errorf("records queued after Stop: %d", doc.Pending())
	}
	tr.Stop()
}

func TestRestart_RederivesEverything(t *testing.T) {
	doc, root, rec, tr := setup(t, page)
	start(t, tr)
	tr.Stop()

	doc.SetAttr(root, "class", "")
	start(t, tr)
	if rec.count() != 2 {
		t.Fatalf("restart should publish again (count %d)", rec.count())
	}
	if len(tr.RelevantStyles()) != 0 {
		t.Errorf("RelevantStyles after restart: %v", tr.RelevantStyles())
	}
}

func TestPublishError_KeepsTracking(t *testing.T) {
	doc, root, rec, tr := setup(t, page)
	rec.err = errors.New("sink down")
	start(t, tr)

	doc.SetTextContent(root, "again")
	doc.Flush()
	if rec.count() != 2 || tr.State() != Active {
		t.Fatalf("publish errors should not stop the tracker (count %d, state %s)", rec.count(), tr.State())
	}

	// A failed publish is not remembered for dedup: once the sink recovers,
	// the same markup goes out.
	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()
	tr.Refresh(context.Background())
	if rec.count() != 3 || !strings.Contains(rec.decoded(t, -1), "again") {
		t.Fatalf("recovered sink did not receive the pending markup (count %d)", rec.count())
	}
	tr.Refresh(context.Background())
	if rec.count() != 3 {
		t.Fatalf("delivered markup published twice (count %d)", rec.count())
	}
}

// blockingPublisher accepts the first snapshot and blocks on the next ones
// until their context is cancelled.
type blockingPublisher struct {
	calls   atomic.Int32
	entered chan struct{}
}

func (p *blockingPublisher) Publish(ctx context.Context, _ snapshot.Snapshot) error {
	if p.calls.Add(1) == 1 {
		return nil
	}
	select {
	case p.entered <- struct{}{}:
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return nil
	}
}

func (p *blockingPublisher) Close() error { return nil }

func TestStop_CancelsInFlightPublish(t *testing.T) {
	doc, err := dom.ParseString(page)
	if err != nil {
		t.Fatal(err)
	}
	root, _ := doc.QuerySelector("#root")
	pub := &blockingPublisher{entered: make(chan struct{}, 1)}
	tr := New(doc, root, pub, WithLogger(quiet))
	start(t, tr)

	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		doc.SetTextContent(root, "slow")
		doc.Flush()
	}()
	select {
	case <-pub.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("publish never started")
	}

	begin := time.Now()
	tr.Stop()
	if d := time.Since(begin); d > time.Second {
		t.Fatalf("Stop waited %v for the blocked publish", d)
	}
	if tr.State() != Idle {
		t.Errorf("State after Stop: %s", tr.State())
	}
	<-flushed
}

func TestDetachedRoot_NotPublished(t *testing.T) {
	doc, root, rec, tr := setup(t, page)
	start(t, tr)

	doc.SetAttr(root, "class", "x y")
	if err := doc.RemoveChild(doc.Body(), root); err != nil {
		t.Fatal(err)
	}
	doc.Flush()
	tr.Refresh(context.Background())
	if rec.count() != 1 {
		t.Fatalf("detached root published (count %d)", rec.count())
	}
	if tr.State() != Active {
		t.Errorf("State: got %s, want active", tr.State())
	}
}

func TestRefresh(t *testing.T) {
	_, root, rec, tr := setup(t, page)
	start(t, tr)

	// Direct tree edits bypass the observers.
	root.FirstChild.Data = "edited"
	tr.Refresh(context.Background())
	if rec.count() != 2 || !strings.Contains(rec.decoded(t, 1), "edited") {
		t.Fatalf("Refresh did not publish the edit (count %d)", rec.count())
	}
	tr.Refresh(context.Background())
	if rec.count() != 2 {
		t.Fatalf("Refresh without change published (count %d)", rec.count())
	}
}

func TestEmptyMarkupNeverPublished(t *testing.T) {
	doc, err := dom.ParseString(page)
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	// A text node renders to an empty string once cleared.
	root, _ := doc.QuerySelector("#root")
	text := root.FirstChild
	tr := New(doc, text, rec, WithLogger(quiet))
	t.Cleanup(tr.Stop)
	start(t, tr)
	if rec.count() != 1 {
		t.Fatalf("count: %d", rec.count())
	}
	doc.SetData(text, "")
	doc.Flush()
	if rec.count() != 1 {
		t.Fatalf("empty markup published (count %d)", rec.count())
	}
}

func stylesheetServer(t *testing.T, body string, status int, release <-chan struct{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if release != nil {
			<-release
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func linkedPage(href string) string {
	return `<html><head><link rel="stylesheet" href="` + href + `"><style>.x{color:red}</style></head>` +
		`<body><div id="root" class="x">hi</div></body></html>`
}

func TestStylesheet_PickedUpByNextChange(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	srv := stylesheetServer(t, "body{font:1px}", http.StatusOK, release)
	t.Cleanup(unblock)

	doc, root, rec, tr := setup(t, linkedPage(srv.URL+"/a.css"),
		WithHTTPClient(srv.Client()), WithStylesheetRepublish(false))
	start(t, tr)

	doc.SetTextContent(root, "one")
	doc.Flush()
	if rec.count() != 2 || strings.Contains(rec.decoded(t, 1), "font:1px") {
		t.Fatal("static layer present before the fetch resolved")
	}

	unblock()
	waitLoaded(t, tr)
	if tr.StaticLayer() != "body{font:1px}" {
		t.Fatalf("StaticLayer: %q", tr.StaticLayer())
	}
	if rec.count() != 2 {
		t.Fatalf("fetch completion published with republish disabled (count %d)", rec.count())
	}

	doc.SetTextContent(root, "two")
	doc.Flush()
	if rec.count() != 3 || !strings.Contains(rec.decoded(t, 2), "font:1px") {
		t.Fatal("static layer missing after the fetch resolved")
	}
}

func TestStylesheet_CompletionRepublishes(t *testing.T) {
	srv := stylesheetServer(t, "body{font:1px}", http.StatusOK, nil)
	_, _, rec, tr := setup(t, linkedPage(srv.URL+"/a.css"), WithHTTPClient(srv.Client()))
	start(t, tr)
	waitLoaded(t, tr)

	if rec.count() != 2 {
		t.Fatalf("publish count: got %d, want 2", rec.count())
	}
	if !strings.Contains(rec.decoded(t, 1), "font:1px") {
		t.Fatal("forced publish lacks the static layer")
	}
}

func TestStylesheet_FailureLeavesLayerEmpty(t *testing.T) {
	srv := stylesheetServer(t, "nope", http.StatusInternalServerError, nil)
	doc, root, rec, tr := setup(t, linkedPage(srv.URL+"/a.css"), WithHTTPClient(srv.Client()))
	start(t, tr)
	waitLoaded(t, tr)

	if tr.StaticLayer() != "" || rec.count() != 1 {
		t.Fatalf("failed fetch: layer=%q count=%d", tr.StaticLayer(), rec.count())
	}
	doc.SetTextContent(root, "still live")
	doc.Flush()
	if rec.count() != 2 {
		t.Fatal("tracker stopped publishing after a fetch failure")
	}
}

func TestStylesheet_CompletionAfterStopIsNoop(t *testing.T) {
	release := make(chan struct{})
	srv := stylesheetServer(t, "body{font:1px}", http.StatusOK, release)
	t.Cleanup(func() { close(release) })

	_, _, rec, tr := setup(t, linkedPage(srv.URL+"/a.css"), WithHTTPClient(srv.Client()))
	start(t, tr)
	tr.Stop()
	waitLoaded(t, tr)

	if tr.StaticLayer() != "" || rec.count() != 1 {
		t.Fatalf("late completion mutated state: layer=%q count=%d", tr.StaticLayer(), rec.count())
	}
}

func TestDebounce_Coalesces(t *testing.T) {
	doc, root, rec, tr := setup(t, page, WithDebounce(20*time.Millisecond))
	start(t, tr)

	for _, s := range []string{"a", "b", "c"} {
		doc.SetTextContent(root, s)
		doc.Flush()
	}
	if rec.count() != 1 {
		t.Fatalf("published inside the window (count %d)", rec.count())
	}

	deadline := time.Now().Add(5 * time.Second)
	for rec.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(60 * time.Millisecond)
	if rec.count() != 2 {
		t.Fatalf("publish count after window: got %d, want 2", rec.count())
	}
	if !strings.Contains(rec.decoded(t, 1), ">c</div>") {
		t.Errorf("debounced publish should carry the final state: %s", rec.decoded(t, 1))
	}
}

func TestSanitizer(t *testing.T) {
	_, _, rec, tr := setup(t, `<html><head></head><body><div id="root"><b onclick="evil()">hi</b><br></div></body></html>`,
		WithSanitizer(snapshot.NewSanitizer()))
	start(t, tr)

	body := rec.decoded(t, 0)
	if strings.Contains(body, "onclick") {
		t.Fatalf("handler survived sanitizing: %s", body)
	}
	dec := xml.NewDecoder(strings.NewReader(body))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("sanitized document not well-formed: %v\n%s", err, body)
		}
	}
}

func TestDimensions(t *testing.T) {
	_, _, rec, tr := setup(t, page, WithDimensions(Dimensions{Width: 16, Height: 16}))
	start(t, tr)
	if !strings.Contains(rec.decoded(t, 0), `viewBox="0 0 16 16"`) {
		t.Fatal("dimensions not applied")
	}
	if last, ok := tr.Last(); !ok || last.Dimensions.Width != 16 {
		t.Errorf("Last: %+v", last)
	}
}

func TestSelectorMatcher(t *testing.T) {
	_, _, _, tr := setup(t, `<html><head><style>/* .x */ .other{}</style><style>.x{color:red}</style></head>`+
		`<body><div id="root" class="x">hi</div></body></html>`, WithMatcher(SelectorMatcher()))
	start(t, tr)
	if n := len(tr.RelevantStyles()); n != 1 {
		t.Fatalf("selector matcher: got %d styles, want 1", n)
	}
}
