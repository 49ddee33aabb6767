// Package dom is a live HTML document with MutationObserver-style change
// notification, built on golang.org/x/net/html.
//
// Every structural, attribute and text change goes through the Document's
// mutation methods, which queue Records for the matching subscriptions.
// Queued records are delivered by Flush, on the caller's goroutine, in
// subscription registration order. Callbacks run without the document lock
// held: they may read the document and register or cancel subscriptions.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxFlushRounds bounds Flush when callbacks keep producing mutations.
const maxFlushRounds = 64

// Document owns an html.Node tree and the subscriptions observing it.
type Document struct {
	mu   sync.RWMutex
	root *html.Node
	subs []*Subscription

	flushing atomic.Bool
}

// New wraps an already parsed tree. The Document takes ownership: callers
// must not mutate the tree directly afterwards.
func New(root *html.Node) *Document {
	return &Document{root: root}
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return New(root), nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// View runs fn with the read lock held. Inside fn use the package-level
// helpers (Text, ClassList, StyleElements, RenderXHTML); the Document
// methods would re-acquire the lock.
func (d *Document) View(fn func()) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn()
}

// Head returns the <head> element, or nil.
func (d *Document) Head() *html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return FindElement(d.root, atom.Head)
}

// Body returns the <body> element, or nil.
func (d *Document) Body() *html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return FindElement(d.root, atom.Body)
}

// Contains reports whether n is attached to this document.
func (d *Document) Contains(n *html.Node) bool {
	if n == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return IsInclusiveAncestor(d.root, n)
}

// QuerySelector returns the first element matching the CSS selector, or nil.
func (d *Document) QuerySelector(selector string) (*html.Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("dom: selector %q: %w", selector, err)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sel.MatchFirst(d.root), nil
}

// QuerySelectorAll returns every element matching the CSS selector in
// document order.
func (d *Document) QuerySelectorAll(selector string) ([]*html.Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("dom: selector %q: %w", selector, err)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sel.MatchAll(d.root), nil
}

// HeadStyles returns every <style> element under <head>, in document order.
func (d *Document) HeadStyles() []*html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return StyleElements(d.root)
}

// StylesheetLinks returns the non-empty href of every
// head link[rel="stylesheet"], in document order.
func (d *Document) StylesheetLinks() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return StylesheetHrefs(d.root)
}

// InnerHTML serialises the children of n as HTML.
func (d *Document) InnerHTML(n *html.Node) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&buf, c)
	}
	return buf.String()
}

// OuterHTML serialises n itself as HTML.
func (d *Document) OuterHTML(n *html.Node) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var buf bytes.Buffer
	html.Render(&buf, n)
	return buf.String()
}

// InnerXHTML serialises the children of n as well-formed XHTML, suitable
// for embedding in an XML document.
func (d *Document) InnerXHTML(n *html.Node) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return RenderChildrenXHTML(n)
}

// TextContent returns the concatenated text of n and its descendants.
func (d *Document) TextContent(n *html.Node) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Text(n)
}

// Pending reports the number of queued, undelivered records.
func (d *Document) Pending() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, s := range d.subs {
		n += len(s.pending)
	}
	return n
}
