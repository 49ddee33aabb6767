package dom

import (
	"slices"

	"golang.org/x/net/html"
)

// MutationType is the kind of change a Record describes.
type MutationType string

const (
	ChildList     MutationType = "childList"
	Attributes    MutationType = "attributes"
	CharacterData MutationType = "characterData"
)

// Record is a single observed mutation.
type Record struct {
	Type          MutationType
	Target        *html.Node   // parent for childList, mutated node otherwise
	Added         []*html.Node // childList only
	Removed       []*html.Node // childList only
	AttributeName string       // attributes only
	OldValue      string       // attributes and characterData
}

// Options selects which mutations a Subscription receives.
type Options struct {
	Subtree       bool
	ChildList     bool
	Attributes    bool
	CharacterData bool
}

// AllMutations observes the target and its descendants for every kind of
// mutation.
var AllMutations = Options{Subtree: true, ChildList: true, Attributes: true, CharacterData: true}

// Callback receives the records queued for a subscription since the
// previous delivery.
type Callback func(records []Record)

// Subscription is an active observation registered with Observe.
type Subscription struct {
	doc     *Document
	target  *html.Node
	opts    Options
	cb      Callback
	pending []Record
	closed  bool
}

// Observe registers cb for mutations of target selected by opts.
func (d *Document) Observe(target *html.Node, opts Options, cb Callback) *Subscription {
	s := &Subscription{doc: d, target: target, opts: opts, cb: cb}
	d.mu.Lock()
	d.subs = append(d.subs, s)
	d.mu.Unlock()
	return s
}

// Target returns the observed node.
func (s *Subscription) Target() *html.Node { return s.target }

// Disconnect stops delivery and drops queued records. Calling it more than
// once is a no-op.
func (s *Subscription) Disconnect() {
	d := s.doc
	d.mu.Lock()
	defer d.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.pending = nil
	if i := slices.Index(d.subs, s); i >= 0 {
		d.subs = slices.Delete(d.subs, i, i+1)
	}
}

// Active reports whether the subscription has not been disconnected.
func (s *Subscription) Active() bool {
	s.doc.mu.RLock()
	defer s.doc.mu.RUnlock()
	return !s.closed
}

func (s *Subscription) matches(rec Record) bool {
	switch rec.Type {
	case ChildList:
		if !s.opts.ChildList {
			return false
		}
	case Attributes:
		if !s.opts.Attributes {
			return false
		}
	case CharacterData:
		if !s.opts.CharacterData {
			return false
		}
	}
	if rec.Target == s.target {
		return true
	}
	return s.opts.Subtree && IsInclusiveAncestor(s.target, rec.Target)
}

func (d *Document) queueLocked(rec Record) {
	for _, s := range d.subs {
		if s.matches(rec) {
			s.pending = append(s.pending, rec)
		}
	}
}

type delivery struct {
	sub     *Subscription
	records []Record
}

// Flush delivers queued records and returns the number of callbacks
// invoked. Records queued by callbacks are delivered in the same Flush.
// A Flush called while another is running, including from a callback,
// returns immediately; the running Flush picks up its records.
func (d *Document) Flush() int {
	n := 0
	for {
		if !d.flushing.CompareAndSwap(false, true) {
			return n
		}
		delivered, settled := d.drain()
		n += delivered
		d.flushing.Store(false)
		if !settled || d.Pending() == 0 {
			return n
		}
	}
}

// drain reports settled=false when it gave up after maxFlushRounds with
// records still queued.
func (d *Document) drain() (n int, settled bool) {
	for round := 0; round < maxFlushRounds; round++ {
		d.mu.Lock()
		var batch []delivery
		for _, s := range d.subs {
			if len(s.pending) > 0 {
				batch = append(batch, delivery{sub: s, records: s.pending})
				s.pending = nil
			}
		}
		d.mu.Unlock()

		if len(batch) == 0 {
			return n, true
		}
		for _, b := range batch {
			// An earlier callback in this round may have disconnected it.
			if !b.sub.Active() {
				continue
			}
			b.sub.cb(b.records)
			n++
		}
	}
	return n, false
}
