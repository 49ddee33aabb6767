package favisync

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/favisync/dom"
	"github.com/hazyhaar/favisync/internal/config"
)

func TestConfigOptions_LocalStylesheet(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "site.css"), []byte("body{font:2px}"), 0o644); err != nil {
		t.Fatal(err)
	}
	htmlPath := filepath.Join(dir, "page.html")
	markup := `<html><head><link rel="stylesheet" href="site.css"><style>.x{color:red}</style></head>` +
		`<body><div id="root" class="x">hi</div></body></html>`
	if err := os.WriteFile(htmlPath, []byte(markup), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Parse([]byte("source:\n  file: " + htmlPath + "\n  selector: '#root'\nwidth: 48\ndedup: resource\n"))
	if err != nil {
		t.Fatal(err)
	}
	opts, err := ConfigOptions(cfg, quiet)
	if err != nil {
		t.Fatal(err)
	}

	doc, err := dom.ParseString(markup)
	if err != nil {
		t.Fatal(err)
	}
	root, _ := doc.QuerySelector(cfg.Source.Selector)
	rec := &recorder{}
	tr := New(doc, root, rec, opts...)
	t.Cleanup(tr.Stop)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitLoaded(t, tr)

	if tr.StaticLayer() != "body{font:2px}" {
		t.Fatalf("StaticLayer: %q", tr.StaticLayer())
	}
	body := rec.decoded(t, -1)
	if !strings.Contains(body, `viewBox="0 0 48 32"`) || !strings.Contains(body, "font:2px") {
		t.Fatalf("options not applied: %s", body)
	}
}

func TestConfigOptions_UnknownMode(t *testing.T) {
	cfg := &Config{Match: "regex"}
	if _, err := ConfigOptions(cfg, quiet); err == nil {
		t.Fatal("expected error for unknown match mode")
	}
}
