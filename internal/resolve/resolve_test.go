package resolve

import (
	"reflect"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/favisync/dom"
)

func parse(t *testing.T, s string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(s)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func root(t *testing.T, doc *dom.Document) *html.Node {
	t.Helper()
	n, err := doc.QuerySelector("#root")
	if err != nil || n == nil {
		t.Fatalf("no #root: %v", err)
	}
	return n
}

func TestClassNames_PreOrderWithDuplicates(t *testing.T) {
	doc := parse(t, `<html><body><div id="root" class="a b"><p class="c"><i class="a"></i></p><span class="d"></span></div></body></html>`)
	got := ClassNames(root(t, doc))
	want := []string{"a", "b", "c", "a", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ClassNames: got %v, want %v", got, want)
	}
	if ClassNames(nil) != nil {
		t.Error("ClassNames(nil) should be nil")
	}
}

func TestResolve_Scenario(t *testing.T) {
	doc := parse(t, `<html><head><style>.x{color:red}</style></head><body><div id="root" class="x">hi</div></body></html>`)
	res := New(nil).Resolve(doc, root(t, doc))
	styles := doc.HeadStyles()
	if len(res.Styles) != 1 || res.Styles[0] != styles[0] {
		t.Fatalf("Styles: got %v, want [%p]", res.Styles, styles[0])
	}
	if res.Texts[0] != ".x{color:red}" {
		t.Errorf("Texts[0]: got %q", res.Texts[0])
	}
}

func TestResolve_FilterIsExact(t *testing.T) {
	doc := parse(t, `<html><head>
<style>.a{}</style>
<style>.zzz{}</style>
<style>div > .b:hover{}</style>
<style>body{margin:0}</style>
<style>.c .a{}</style>
</head><body><div id="root"><b class="a"></b><i class="b"></i></div></body></html>`)
	res := New(nil).Resolve(doc, root(t, doc))

	got := res.Texts
	want := []string{".a{}", "div > .b:hover{}", ".c .a{}"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Texts: got %v, want %v", got, want)
	}
}

func TestResolve_NoClassNames(t *testing.T) {
	doc := parse(t, `<html><head><style>.x{}</style></head><body><div id="root">plain</div></body></html>`)
	res := New(nil).Resolve(doc, root(t, doc))
	if len(res.Styles) != 0 || len(res.ClassNames) != 0 {
		t.Fatalf("got %+v, want empty", res)
	}
}

func TestResolve_BodyStylesIgnored(t *testing.T) {
	doc := parse(t, `<html><head></head><body><style>.x{}</style><div id="root" class="x"></div></body></html>`)
	res := New(nil).Resolve(doc, root(t, doc))
	if len(res.Styles) != 0 {
		t.Fatalf("Styles: got %d, want 0 (only head styles are scanned)", len(res.Styles))
	}
}

func TestSubstring_FalsePositive(t *testing.T) {
	// The heuristic accepts a match inside a comment.
	if !Substring.Match("/* see .x */ body{}", []string{"x"}) {
		t.Error("Substring should match inside a comment")
	}
	// And a prefix of a longer class.
	if !Substring.Match(".xl{}", []string{"x"}) {
		t.Error("Substring should match a longer class name")
	}
}

func TestSelectors_IgnoresComments(t *testing.T) {
	m := Selectors{}
	if m.Match("/* see .x */ body{}", []string{"x"}) {
		t.Error("Selectors should not match inside a comment")
	}
	if m.Match(".xl{}", []string{"x"}) {
		t.Error("Selectors should not match a longer class name")
	}
	if !m.Match("p, .x > a { color: red }", []string{"x"}) {
		t.Error("Selectors should match a grouped selector")
	}
}

func TestSelectors_NestedAtRules(t *testing.T) {
	m := Selectors{}
	css := "@media (max-width: 10px) { .narrow { display: none } }"
	if !m.Match(css, []string{"narrow"}) {
		t.Error("Selectors should match inside @media")
	}
}

func TestSelectors_NoClassNames(t *testing.T) {
	if (Selectors{}).Match(".x{}", nil) {
		t.Error("empty class set should never match")
	}
}

func TestSelectorClasses(t *testing.T) {
	tests := []struct {
		sel  string
		want []string
	}{
		{".a", []string{"a"}},
		{"div.a.b > span", []string{"a", "b"}},
		{`.hover\:red`, []string{"hover:red"}},
		{`a[href$=".css"] .c`, []string{"c"}},
		{`:not(.x)`, []string{"x"}},
		{"#id", nil},
	}
	for _, tt := range tests {
		got := SelectorClasses(tt.sel)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SelectorClasses(%q): got %v, want %v", tt.sel, got, tt.want)
		}
	}
}

func TestResolve_SelectorsMatcher(t *testing.T) {
	doc := parse(t, `<html><head>
<style>/* .x */ body{}</style>
<style>.x{color:red}</style>
</head><body><div id="root" class="x"></div></body></html>`)
	res := New(Selectors{}).Resolve(doc, root(t, doc))
	if len(res.Texts) != 1 || !strings.Contains(res.Texts[0], "color:red") {
		t.Fatalf("Texts: got %v", res.Texts)
	}
}
