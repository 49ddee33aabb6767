package dom

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

var (
	// ErrNotChild is returned when a reference node is not a child of the
	// given parent.
	ErrNotChild = errors.New("dom: node is not a child of parent")
	// ErrHierarchy is returned when an insertion would create a cycle.
	ErrHierarchy = errors.New("dom: insertion would create a cycle")
	// ErrNotCharacterData is returned by SetData on a non-text node.
	ErrNotCharacterData = errors.New("dom: node is not character data")
)

// AppendChild appends child to parent, detaching it from its current
// parent first.
func (d *Document) AppendChild(parent, child *html.Node) error {
	return d.InsertBefore(parent, child, nil)
}

// InsertBefore inserts child before ref under parent. A nil ref appends.
func (d *Document) InsertBefore(parent, child, ref *html.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ref != nil && ref.Parent != parent {
		return ErrNotChild
	}
	if IsInclusiveAncestor(child, parent) {
		return ErrHierarchy
	}
	if ref == child {
		return nil
	}
	d.detachLocked(child)
	parent.InsertBefore(child, ref)
	d.queueLocked(Record{Type: ChildList, Target: parent, Added: []*html.Node{child}})
	return nil
}

// RemoveChild detaches child from parent.
func (d *Document) RemoveChild(parent, child *html.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if child.Parent != parent {
		return ErrNotChild
	}
	parent.RemoveChild(child)
	d.queueLocked(Record{Type: ChildList, Target: parent, Removed: []*html.Node{child}})
	return nil
}

// ReplaceChildren removes every child of parent and appends children in
// order, queueing a single childList record.
func (d *Document) ReplaceChildren(parent *html.Node, children ...*html.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, c := range children {
		if IsInclusiveAncestor(c, parent) {
			return ErrHierarchy
		}
	}
	d.replaceChildrenLocked(parent, children)
	return nil
}

// SetAttr sets attribute key on n.
func (d *Document) SetAttr(n *html.Node, key, val string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	old := ""
	found := false
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			old = n.Attr[i].Val
			n.Attr[i].Val = val
			found = true
			break
		}
	}
	if !found {
		n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
	}
	d.queueLocked(Record{Type: Attributes, Target: n, AttributeName: key, OldValue: old})
}

// RemoveAttr removes attribute key from n. Removing an absent attribute
// queues nothing.
func (d *Document) RemoveAttr(n *html.Node, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			old := n.Attr[i].Val
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			d.queueLocked(Record{Type: Attributes, Target: n, AttributeName: key, OldValue: old})
			return
		}
	}
}

// SetData replaces the character data of a text or comment node.
func (d *Document) SetData(n *html.Node, data string) error {
	if n.Type != html.TextNode && n.Type != html.CommentNode {
		return ErrNotCharacterData
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	old := n.Data
	n.Data = data
	d.queueLocked(Record{Type: CharacterData, Target: n, OldValue: old})
	return nil
}

// SetTextContent replaces the children of el with a single text node.
// An empty text leaves el without children.
func (d *Document) SetTextContent(el *html.Node, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var children []*html.Node
	if text != "" {
		children = append(children, NewText(text))
	}
	d.replaceChildrenLocked(el, children)
}

// SetInnerHTML parses markup as a fragment in the context of el and
// replaces el's children with the result.
func (d *Document) SetInnerHTML(el *html.Node, markup string) error {
	if el.Type != html.ElementNode {
		return fmt.Errorf("dom: set inner html: not an element")
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), el)
	if err != nil {
		return fmt.Errorf("dom: set inner html: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.replaceChildrenLocked(el, nodes)
	return nil
}

func (d *Document) replaceChildrenLocked(parent *html.Node, children []*html.Node) {
	var removed []*html.Node
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		removed = append(removed, c)
		c = next
	}
	for _, c := range children {
		d.detachLocked(c)
		parent.AppendChild(c)
	}
	if len(removed) == 0 && len(children) == 0 {
		return
	}
	d.queueLocked(Record{Type: ChildList, Target: parent, Added: children, Removed: removed})
}

func (d *Document) detachLocked(n *html.Node) {
	p := n.Parent
	if p == nil {
		return
	}
	p.RemoveChild(n)
	d.queueLocked(Record{Type: ChildList, Target: p, Removed: []*html.Node{n}})
}
