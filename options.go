package favisync

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hazyhaar/favisync/snapshot"
)

// DedupMode selects what two consecutive snapshots are compared on.
type DedupMode int

const (
	// DedupMarkup suppresses a publish when the tracked markup is unchanged,
	// even if the embedded styles changed.
	DedupMarkup DedupMode = iota
	// DedupResource suppresses a publish only when the whole resource is
	// unchanged, so style-only changes are published.
	DedupResource
)

func (m DedupMode) String() string {
	if m == DedupResource {
		return "resource"
	}
	return "markup"
}

type options struct {
	logger    *slog.Logger
	dims      snapshot.Dimensions
	matcher   Matcher
	client    *http.Client
	base      *url.URL
	partial   bool
	dedup     DedupMode
	republish bool
	sanitizer snapshot.Sanitizer
	debounce  time.Duration
	userAgent string
}

// Option configures a Tracker.
type Option func(*options)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDimensions sets the favicon viewport. Default: 32x32.
func WithDimensions(d Dimensions) Option {
	return func(o *options) { o.dims = d }
}

// WithMatcher replaces the substring style matcher.
func WithMatcher(m Matcher) Option {
	return func(o *options) { o.matcher = m }
}

// WithHTTPClient sets the client fetching linked stylesheets.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithUserAgent sets the User-Agent of stylesheet requests.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithBaseURL resolves relative stylesheet hrefs against base.
func WithBaseURL(base *url.URL) Option {
	return func(o *options) { o.base = base }
}

// WithPartialStylesheets keeps the stylesheets that loaded when others
// fail. By default one failure leaves the static layer empty.
func WithPartialStylesheets(partial bool) Option {
	return func(o *options) { o.partial = partial }
}

// WithDedup selects the dedup mode. Default: DedupMarkup.
func WithDedup(m DedupMode) Option {
	return func(o *options) { o.dedup = m }
}

// WithStylesheetRepublish controls whether the completion of the stylesheet
// fetch forces a publish. When false the static layer shows up with the
// next published change. Default: true.
func WithStylesheetRepublish(on bool) Option {
	return func(o *options) { o.republish = on }
}

// WithSanitizer cleans the tracked markup before it is embedded.
func WithSanitizer(s snapshot.Sanitizer) Option {
	return func(o *options) { o.sanitizer = s }
}

// WithDebounce coalesces the publishes of a window into one. The first
// change opens the window; the state at its end is published. Zero
// publishes on every delivered change.
func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}
