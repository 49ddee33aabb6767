package favisync

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/hazyhaar/favisync/internal/config"
	"github.com/hazyhaar/favisync/internal/stylesheet"
	"github.com/hazyhaar/favisync/snapshot"
)

// ConfigOptions translates a validated configuration into Tracker options.
func ConfigOptions(cfg *Config, logger *slog.Logger) ([]Option, error) {
	opts := []Option{
		WithLogger(logger),
		WithDimensions(Dimensions{Width: cfg.Width, Height: cfg.Height}),
		WithPartialStylesheets(cfg.PartialStylesheets),
		WithDebounce(cfg.Debounce.Window),
	}
	if cfg.RepublishOnStylesheets != nil {
		opts = append(opts, WithStylesheetRepublish(*cfg.RepublishOnStylesheets))
	}

	switch cfg.Match {
	case config.MatchSelectors:
		opts = append(opts, WithMatcher(SelectorMatcher()))
	case config.MatchSubstring, "":
	default:
		return nil, fmt.Errorf("favisync: unknown match mode %q", cfg.Match)
	}

	switch cfg.Dedup {
	case config.DedupResource:
		opts = append(opts, WithDedup(DedupResource))
	case config.DedupMarkup, "":
	default:
		return nil, fmt.Errorf("favisync: unknown dedup mode %q", cfg.Dedup)
	}

	if cfg.Sanitize {
		opts = append(opts, WithSanitizer(snapshot.NewSanitizer()))
	}

	base, err := baseURL(cfg.Source)
	if err != nil {
		return nil, err
	}
	if base != nil {
		opts = append(opts, WithBaseURL(base))
	}
	return opts, nil
}

// baseURL picks the URL relative stylesheet hrefs resolve against: the
// explicit base_url, else the page URL, else the directory of the file.
func baseURL(src config.SourceConfig) (*url.URL, error) {
	switch {
	case src.BaseURL != "":
		u, err := url.Parse(src.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("favisync: base_url: %w", err)
		}
		return u, nil
	case src.URL != "":
		u, err := url.Parse(src.URL)
		if err != nil {
			return nil, fmt.Errorf("favisync: source url: %w", err)
		}
		return u, nil
	case src.File != "":
		return stylesheet.BaseForFile(src.File)
	}
	return nil, nil
}
