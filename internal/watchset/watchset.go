// Package watchset is an ownership registry of DOM subscriptions: at most
// one active subscription per node, every one of them released by
// TeardownAll.
package watchset

import (
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/favisync/dom"
)

// Set maps each watched node to its subscription. Safe for concurrent use.
type Set struct {
	doc     *dom.Document
	opts    dom.Options
	mu      sync.Mutex
	entries map[*html.Node]*dom.Subscription
}

// New creates an empty Set observing subtree, child-list, attribute and
// text mutations.
func New(doc *dom.Document) *Set {
	return &Set{
		doc:     doc,
		opts:    dom.AllMutations,
		entries: make(map[*html.Node]*dom.Subscription),
	}
}

// EnsureWatching subscribes onChange to node unless node is already
// watched. It reports whether a subscription was created.
func (s *Set) EnsureWatching(node *html.Node, onChange dom.Callback) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[node]; ok {
		return false
	}
	s.entries[node] = s.doc.Observe(node, s.opts, onChange)
	return true
}

// Watching reports whether node has an active subscription.
func (s *Set) Watching(node *html.Node) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[node]
	return ok
}

// Len returns the number of active subscriptions.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Release cancels the subscription of a single node.
func (s *Set) Release(node *html.Node) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.entries[node]
	if !ok {
		return false
	}
	sub.Disconnect()
	delete(s.entries, node)
	return true
}

// TeardownAll cancels every subscription exactly once and empties the
// registry. It returns the number released; a second call releases none.
func (s *Set) TeardownAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	for node, sub := range s.entries {
		sub.Disconnect()
		delete(s.entries, node)
	}
	return n
}
