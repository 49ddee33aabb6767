// Command favisync mirrors an element of a web page into a live favicon.
//
// Usage:
//
//	favisync -config favisync.yaml                      # run from YAML config
//	favisync -file page.html -selector '#badge'         # follow a local page
//	favisync -url https://example.com -selector .status # follow a page in Chrome
//	favisync -follow favicons.db -serve :8080           # serve another process's history
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/favisync"
	"github.com/hazyhaar/favisync/dom"
	"github.com/hazyhaar/favisync/internal/browser"
	"github.com/hazyhaar/favisync/internal/config"
	"github.com/hazyhaar/favisync/internal/hostwatch"
	"github.com/hazyhaar/favisync/internal/server"
	"github.com/hazyhaar/favisync/internal/sink"
	"github.com/hazyhaar/favisync/internal/stylesheet"
)

type flags struct {
	config   string
	file     string
	url      string
	selector string
	out      string
	serve    string
	history  string
	follow   string
	logLevel string
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "path to favisync.yaml config file")
	flag.StringVar(&f.file, "file", "", "local HTML page to follow")
	flag.StringVar(&f.url, "url", "", "page URL to follow in Chrome")
	flag.StringVar(&f.selector, "selector", "", "CSS selector of the tracked element")
	flag.StringVar(&f.out, "out", "", "write the current favicon SVG to this file")
	flag.StringVar(&f.serve, "serve", "", "serve the favicon over HTTP on this address")
	flag.StringVar(&f.history, "history", "", "record every favicon in this SQLite file")
	flag.StringVar(&f.follow, "follow", "", "serve the history in this SQLite file instead of tracking")
	flag.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch f.logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, f); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("favisync: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, f flags) error {
	if f.follow != "" {
		return runFollow(ctx, logger, f.follow, f.serve)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "usage: favisync -config <file> | -file <page> -selector <css> | -url <url> -selector <css> | -follow <db> -serve <addr>")
		return err
	}

	sinks, history, err := buildSinks(cfg, logger)
	if err != nil {
		return err
	}
	var latest *sink.Latest
	if cfg.Server.Addr != "" {
		latest = sink.NewLatest()
		sinks = append(sinks, latest)
	}
	router := sink.NewRouter(logger, sinks...)
	defer router.Close()

	opts, err := favisync.ConfigOptions(cfg, logger)
	if err != nil {
		return err
	}

	if latest != nil {
		var sopts []server.Option
		sopts = append(sopts, server.WithLogger(logger))
		if history != nil {
			sopts = append(sopts, server.WithHistory(history))
		}
		srv := server.New(latest, sopts...)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
				logger.Error("favisync: server failed", "error", err)
			}
		}()
	}

	if cfg.Source.File != "" {
		return runFile(ctx, logger, cfg, router, opts)
	}
	return runURL(ctx, logger, cfg, router, opts)
}

// loadConfig reads the config file if any and lets flags override it.
func loadConfig(f flags) (*config.Config, error) {
	cfg := &config.Config{}
	if f.config != "" {
		var err error
		if cfg, err = config.LoadFile(f.config); err != nil {
			return nil, err
		}
	}
	if f.file != "" {
		cfg.Source.File, cfg.Source.URL = f.file, ""
	}
	if f.url != "" {
		cfg.Source.URL, cfg.Source.File = f.url, ""
	}
	if f.selector != "" {
		cfg.Source.Selector = f.selector
	}
	if f.serve != "" {
		cfg.Server.Addr = f.serve
	}
	if f.out != "" {
		cfg.Sinks = append(cfg.Sinks, config.SinkConfig{Type: "file", Path: f.out})
	}
	if f.history != "" {
		cfg.Sinks = append(cfg.Sinks, config.SinkConfig{Type: "history", Path: f.history})
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// buildSinks creates the configured outputs. Without any, favicons go to
// stdout. The first history sink is returned for the server.
func buildSinks(cfg *config.Config, logger *slog.Logger) ([]sink.Publisher, *sink.History, error) {
	var sinks []sink.Publisher
	var history *sink.History
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, sink.NewStdout(nil))
		case "webhook":
			sinks = append(sinks, sink.NewWebhook(sc.URL, sink.WithWebhookLogger(logger)))
		case "file":
			sinks = append(sinks, sink.NewFile(sc.Path))
		case "history":
			h, err := sink.OpenHistory(sc.Path)
			if err != nil {
				return nil, nil, err
			}
			if history == nil {
				history = h
			}
			sinks = append(sinks, h)
		default:
			logger.Warn("favisync: unknown sink type", "type", sc.Type)
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, sink.NewStdout(nil))
	}
	return sinks, history, nil
}

// session tracks the selector across page versions. Until the selector
// matches, each new version is parsed from scratch; once a Tracker runs,
// versions are reconciled into its document.
type session struct {
	logger   *slog.Logger
	selector string
	pub      sink.Publisher
	opts     []favisync.Option

	doc *dom.Document
	tr  *favisync.Tracker
}

// load brings src into the session, starting a Tracker when the selector
// matches for the first time or again after its root went away.
func (s *session) load(ctx context.Context, src string) error {
	if s.tr != nil && s.tr.State() == favisync.Active {
		err := syncPage(s.doc, src, s.selector)
		if !errors.Is(err, hostwatch.ErrRootNotFound) {
			return err
		}
		s.logger.Info("favisync: tracked element gone, waiting for it", "selector", s.selector)
		s.tr.Stop()
	}

	doc, err := dom.ParseString(src)
	if err != nil {
		return fmt.Errorf("parse page: %w", err)
	}
	root, err := doc.QuerySelector(s.selector)
	if err != nil {
		return err
	}
	if root == nil {
		s.logger.Debug("favisync: selector matches nothing yet", "selector", s.selector)
		return nil
	}
	s.doc, s.tr = doc, favisync.New(doc, root, s.pub, s.opts...)
	return s.tr.Start(ctx)
}

// restart re-runs the Tracker, picking up changed stylesheets.
func (s *session) restart(ctx context.Context) error {
	if s.tr == nil {
		return nil
	}
	s.tr.Stop()
	return s.tr.Start(ctx)
}

func (s *session) stop() {
	if s.tr != nil {
		s.tr.Stop()
	}
}

func runFile(ctx context.Context, logger *slog.Logger, cfg *config.Config, pub sink.Publisher, opts []favisync.Option) error {
	path := cfg.Source.File
	sess := &session{logger: logger, selector: cfg.Source.Selector, pub: pub, opts: opts}
	defer sess.stop()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read page: %w", err)
	}
	if err := sess.load(ctx, string(data)); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if sess.tr == nil {
		logger.Warn("favisync: selector matches nothing yet", "selector", sess.selector)
	}

	base, err := stylesheet.BaseForFile(path)
	if err != nil {
		return err
	}
	if cfg.Source.BaseURL != "" {
		if base, err = url.Parse(cfg.Source.BaseURL); err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
	}
	links, err := stylesheetLinks(string(data))
	if err != nil {
		return err
	}

	w, err := hostwatch.New(hostwatch.Config{
		Page:        path,
		Stylesheets: stylesheet.LocalFiles(base, links),
		Window:      cfg.Debounce.Window,
		MaxBuffer:   cfg.Debounce.MaxBuffer,
		Logger:      logger,
	}, hostwatch.Handlers{
		Page: func(ctx context.Context) error {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			return sess.load(ctx, string(data))
		},
		Stylesheets: sess.restart,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	return w.Run(ctx)
}

func stylesheetLinks(src string) ([]string, error) {
	doc, err := dom.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc.StylesheetLinks(), nil
}

func runURL(ctx context.Context, logger *slog.Logger, cfg *config.Config, pub sink.Publisher, opts []favisync.Option) error {
	mgr := browser.NewManager(browser.Config{
		RemoteURL: cfg.Browser.Remote,
		Headless:  *cfg.Browser.Headless,
		Block:     []string{"Image", "Font", "Media"},
		Logger:    logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	tab, err := browser.Open(ctx, mgr, cfg.Source.URL)
	if err != nil {
		return err
	}
	defer tab.Close()

	if cfg.Browser.Inject {
		pub = sink.NewRouter(logger, pub, browser.NewInjector(tab))
	}
	sess := &session{logger: logger, selector: cfg.Source.Selector, pub: pub, opts: opts}
	defer sess.stop()

	src, err := tab.HTML(ctx)
	if err != nil {
		return err
	}
	if err := sess.load(ctx, src); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	ticker := time.NewTicker(cfg.Browser.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			src, err := tab.HTML(ctx)
			if err != nil {
				logger.Warn("favisync: read tab failed", "error", err)
				continue
			}
			if err := sess.load(ctx, src); err != nil {
				logger.Warn("favisync: sync failed", "error", err)
			}
		}
	}
}

// syncPage reconciles a fresh copy of the page into doc and delivers the
// resulting mutations.
func syncPage(doc *dom.Document, src, selector string) error {
	fresh, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return fmt.Errorf("parse page: %w", err)
	}
	if err := hostwatch.Reconcile(doc, fresh, selector); err != nil {
		return err
	}
	doc.Flush()
	return nil
}

func runFollow(ctx context.Context, logger *slog.Logger, path, addr string) error {
	if addr == "" {
		return errors.New("follow: -serve is required")
	}
	h, err := sink.OpenHistory(path)
	if err != nil {
		return err
	}
	defer h.Close()

	latest := sink.NewLatest()
	w := sink.Follow(ctx, h, latest, 500*time.Millisecond, logger)
	defer func() { logger.Info("favisync: follow stopped", "stats", w.Stats()) }()

	return server.New(latest, server.WithHistory(h), server.WithLogger(logger)).ListenAndServe(ctx, addr)
}
