package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// setFaviconJS upserts the favicon link of the page.
const setFaviconJS = `(href) => {
	let link = document.querySelector('link[rel="icon"][data-favisync]');
	if (!link) {
		link = document.createElement('link');
		link.rel = 'icon';
		link.type = 'image/svg+xml';
		link.setAttribute('data-favisync', '');
		document.head.appendChild(link);
	}
	link.href = href;
	return link.href.length;
}`

// Tab is one page loaded in the managed browser.
type Tab struct {
	Page    *rod.Page
	PageURL string
}

// Open creates a tab and navigates to pageURL. Headless browsers get a
// stealth page.
func Open(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error
	if mgr.cfg.Headless {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.Block) > 0 {
		applyResourceBlocking(page, mgr.cfg.Block)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &Tab{Page: page, PageURL: pageURL}, nil
}

// HTML returns the outer HTML of the rendered document.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// SetFavicon points the page's favicon at resource.
func (t *Tab) SetFavicon(ctx context.Context, resource string) error {
	if _, err := t.Page.Context(ctx).Eval(setFaviconJS, resource); err != nil {
		return fmt.Errorf("browser: set favicon: %w", err)
	}
	return nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
