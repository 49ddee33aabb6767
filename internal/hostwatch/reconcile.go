package hostwatch

import (
	"errors"
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/favisync/dom"
)

// ErrRootNotFound is returned by Reconcile when the selector matches
// nothing in one of the documents.
var ErrRootNotFound = errors.New("hostwatch: tracked root not found")

// Reconcile carries a freshly parsed page into the live document. The head
// children and the tracked root's attributes and children are replaced by
// the fresh ones; the head and root nodes themselves are kept, so their
// subscriptions survive. The caller flushes doc to deliver the changes.
func Reconcile(doc *dom.Document, fresh *html.Node, selector string) error {
	freshDoc := dom.New(fresh)
	freshRoot, err := freshDoc.QuerySelector(selector)
	if err != nil {
		return err
	}
	liveRoot, err := doc.QuerySelector(selector)
	if err != nil {
		return err
	}
	if freshRoot == nil || liveRoot == nil {
		return fmt.Errorf("%w: %s", ErrRootNotFound, selector)
	}

	var head *html.Node
	var headChanged, attrsChanged, childrenChanged bool
	freshHead := dom.FindElement(fresh, atom.Head)
	doc.View(func() {
		head = dom.FindElement(doc.Root(), atom.Head)
		if head != nil && freshHead != nil {
			headChanged = dom.RenderChildrenXHTML(head) != dom.RenderChildrenXHTML(freshHead)
		}
		attrsChanged = !sameAttrs(liveRoot.Attr, freshRoot.Attr)
		childrenChanged = dom.RenderChildrenXHTML(liveRoot) != dom.RenderChildrenXHTML(freshRoot)
	})

	if headChanged {
		if err := doc.ReplaceChildren(head, detachChildren(freshHead)...); err != nil {
			return fmt.Errorf("hostwatch: head: %w", err)
		}
	}
	if attrsChanged {
		syncAttrs(doc, liveRoot, freshRoot.Attr)
	}
	if childrenChanged {
		if err := doc.ReplaceChildren(liveRoot, detachChildren(freshRoot)...); err != nil {
			return fmt.Errorf("hostwatch: root: %w", err)
		}
	}
	return nil
}

func sameAttrs(a, b []html.Attribute) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// syncAttrs makes the attributes of live equal to want. live is only
// mutated through doc.
func syncAttrs(doc *dom.Document, live *html.Node, want []html.Attribute) {
	keep := make(map[string]bool, len(want))
	for _, a := range want {
		keep[a.Key] = true
	}
	var stale []string
	var current map[string]string
	doc.View(func() {
		current = make(map[string]string, len(live.Attr))
		for _, a := range live.Attr {
			current[a.Key] = a.Val
			if !keep[a.Key] {
				stale = append(stale, a.Key)
			}
		}
	})
	for _, k := range stale {
		doc.RemoveAttr(live, k)
	}
	for _, a := range want {
		if v, ok := current[a.Key]; !ok || v != a.Val {
			doc.SetAttr(live, a.Key, a.Val)
		}
	}
}

func detachChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		out = append(out, c)
		c = next
	}
	return out
}
