package dom

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	headStyleSel      = cascadia.MustCompile("head style")
	stylesheetLinkSel = cascadia.MustCompile(`head link[rel="stylesheet"]`)
)

// NewElement creates a detached element.
func NewElement(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     attrs,
	}
}

// NewText creates a detached text node.
func NewText(data string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: data}
}

// NewStyle creates a detached <style> element holding css.
func NewStyle(css string) *html.Node {
	st := NewElement("style")
	st.AppendChild(NewText(css))
	return st
}

// FindElement returns the first element with the given atom in pre-order,
// starting at n.
func FindElement(n *html.Node, a atom.Atom) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := FindElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// IsInclusiveAncestor reports whether anc is n or one of its ancestors.
func IsInclusiveAncestor(anc, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == anc {
			return true
		}
	}
	return false
}

// Attr returns the value of the attribute key on n.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// ClassList returns the whitespace-separated tokens of n's class attribute.
func ClassList(n *html.Node) []string {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	v, ok := Attr(n, "class")
	if !ok {
		return nil
	}
	return strings.Fields(v)
}

// Text returns the concatenated character data of n and its descendants.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// StyleElements returns every <style> element under <head> of the tree
// rooted at doc.
func StyleElements(doc *html.Node) []*html.Node {
	return headStyleSel.MatchAll(doc)
}

// StylesheetHrefs returns the non-empty href of each stylesheet link under
// <head> of the tree rooted at doc.
func StylesheetHrefs(doc *html.Node) []string {
	var hrefs []string
	for _, link := range stylesheetLinkSel.MatchAll(doc) {
		if href, ok := Attr(link, "href"); ok && href != "" {
			hrefs = append(hrefs, href)
		}
	}
	return hrefs
}
