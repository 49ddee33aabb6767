// Package resolve finds the <style> elements of a document whose rules can
// apply to a subtree. There is no DOM API answering that question, so the
// decision is made from the class-name tokens present in the subtree.
package resolve

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/favisync/dom"
)

// Matcher decides whether a style text is relevant to a set of class names.
type Matcher interface {
	Match(css string, classNames []string) bool
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(css string, classNames []string) bool

func (f MatcherFunc) Match(css string, classNames []string) bool { return f(css, classNames) }

// Substring keeps a style text when it contains ".<token>" for any token.
// It does not parse CSS: a comment or an unrelated selector containing the
// same substring is a false positive, escaped class names are missed.
var Substring Matcher = MatcherFunc(func(css string, classNames []string) bool {
	for _, c := range classNames {
		if strings.Contains(css, "."+c) {
			return true
		}
	}
	return false
})

// Result is one resolution pass.
type Result struct {
	ClassNames []string     // pre-order, duplicates retained
	Styles     []*html.Node // relevant <style> elements, document order
	Texts      []string     // text of each element in Styles
}

// Resolver runs the class-name scan and the style filter.
type Resolver struct {
	matcher Matcher
}

// New creates a Resolver. A nil matcher selects Substring.
func New(m Matcher) *Resolver {
	if m == nil {
		m = Substring
	}
	return &Resolver{matcher: m}
}

// Resolve collects the class names of root's subtree and filters the
// document's head <style> elements against them. It only reads.
func (r *Resolver) Resolve(doc *dom.Document, root *html.Node) Result {
	var res Result
	doc.View(func() {
		res.ClassNames = ClassNames(root)
		if len(res.ClassNames) == 0 {
			return
		}
		for _, st := range dom.StyleElements(doc.Root()) {
			css := dom.Text(st)
			if r.matcher.Match(css, res.ClassNames) {
				res.Styles = append(res.Styles, st)
				res.Texts = append(res.Texts, css)
			}
		}
	})
	return res
}

// ClassNames returns the class tokens of root and its element descendants
// in pre-order, parent before children. The caller must hold the document
// lock or own the tree.
func ClassNames(root *html.Node) []string {
	if root == nil {
		return nil
	}
	return collect(root, nil)
}

func collect(n *html.Node, acc []string) []string {
	acc = append(acc, dom.ClassList(n)...)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			acc = collect(c, acc)
		}
	}
	return acc
}
