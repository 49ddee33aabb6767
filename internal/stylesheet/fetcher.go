// Package stylesheet fetches the externally linked stylesheets of a
// document and concatenates them into the static style layer.
package stylesheet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// maxBody caps a single stylesheet read.
const maxBody = 10 << 20

// Fetcher retrieves stylesheet bodies over HTTP or from the local
// filesystem.
type Fetcher struct {
	client  *http.Client
	ua      string
	base    *url.URL
	partial bool
	logger  *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.ua = ua }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithBase resolves relative hrefs against u.
func WithBase(u *url.URL) Option {
	return func(f *Fetcher) { f.base = u }
}

// WithPartial switches from all-or-nothing to partial inclusion: a failed
// href contributes an empty body and is logged instead of failing the layer.
func WithPartial(partial bool) Option {
	return func(f *Fetcher) { f.partial = partial }
}

// New creates a Fetcher with sensible defaults.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		ua:     "Mozilla/5.0 (compatible; favisync/1.0)",
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// BaseForFile returns the file:// URL of the directory holding path, for
// resolving stylesheet hrefs of a local HTML file.
func BaseForFile(path string) (*url.URL, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("stylesheet: base for %s: %w", path, err)
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Dir(abs)) + "/"}, nil
}

// LocalFiles returns the filesystem paths of the hrefs that resolve to
// file URLs against base, in input order.
func LocalFiles(base *url.URL, hrefs []string) []string {
	var out []string
	for _, href := range hrefs {
		u, err := url.Parse(href)
		if err != nil {
			continue
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		if u.Scheme == "file" {
			out = append(out, filepath.FromSlash(u.Path))
		}
	}
	return out
}

// FetchAll fetches every href concurrently and joins the bodies with "\n"
// in input order. It waits for all fetches before returning. Without
// WithPartial, any failure fails the whole layer; the returned error joins
// every failed href.
func (f *Fetcher) FetchAll(ctx context.Context, hrefs []string) (string, error) {
	bodies := make([]string, len(hrefs))
	errs := make([]error, len(hrefs))

	var wg sync.WaitGroup
	for i, href := range hrefs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bodies[i], errs[i] = f.fetch(ctx, href)
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		if !f.partial {
			return "", err
		}
		f.logger.Warn("stylesheet: partial layer", "hrefs", len(hrefs), "error", err)
	}

	f.logger.Debug("stylesheet: layer fetched", "hrefs", len(hrefs))
	return strings.Join(bodies, "\n"), nil
}

func (f *Fetcher) fetch(ctx context.Context, href string) (string, error) {
	u, err := f.resolve(href)
	if err != nil {
		return "", fmt.Errorf("stylesheet: %s: %w", href, err)
	}

	var body string
	switch u.Scheme {
	case "http", "https":
		body, err = f.get(ctx, u.String())
	case "file", "":
		body, err = readFile(u.Path)
	default:
		err = fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if err != nil {
		return "", fmt.Errorf("stylesheet: %s: %w", href, err)
	}
	return body, nil
}

func (f *Fetcher) resolve(href string) (*url.URL, error) {
	u, err := url.Parse(href)
	if err != nil {
		return nil, err
	}
	if f.base != nil {
		u = f.base.ResolveReference(u)
	}
	return u, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "text/css,*/*;q=0.1")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

func readFile(path string) (string, error) {
	fh, err := os.Open(filepath.FromSlash(path))
	if err != nil {
		return "", err
	}
	defer fh.Close()

	body, err := io.ReadAll(io.LimitReader(fh, maxBody))
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	return string(body), nil
}
