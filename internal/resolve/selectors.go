package resolve

import (
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
)

// Selectors keeps a style text only when one of its rule selectors names a
// class token, including rules nested in @media and @supports blocks.
// Unlike Substring it ignores comments, declarations and property values.
// Text that fails to parse is handed to Fallback (Substring when nil).
type Selectors struct {
	Fallback Matcher
}

func (m Selectors) Match(text string, classNames []string) bool {
	if len(classNames) == 0 {
		return false
	}
	sheet, err := parser.Parse(text)
	if err != nil {
		fb := m.Fallback
		if fb == nil {
			fb = Substring
		}
		return fb.Match(text, classNames)
	}

	want := make(map[string]struct{}, len(classNames))
	for _, c := range classNames {
		want[c] = struct{}{}
	}
	return rulesMatch(sheet.Rules, want)
}

func rulesMatch(rules []*css.Rule, want map[string]struct{}) bool {
	for _, r := range rules {
		if r.Kind == css.AtRule {
			if rulesMatch(r.Rules, want) {
				return true
			}
			continue
		}
		for _, sel := range r.Selectors {
			for _, c := range SelectorClasses(sel) {
				if _, ok := want[c]; ok {
					return true
				}
			}
		}
	}
	return false
}

// SelectorClasses extracts the class names referenced by a selector,
// unescaping backslash sequences (".hover\:red" yields "hover:red").
// Attribute selectors and quoted strings are skipped.
func SelectorClasses(sel string) []string {
	var out []string
	for i := 0; i < len(sel); i++ {
		switch sel[i] {
		case '[':
			for i < len(sel) && sel[i] != ']' {
				i++
			}
		case '"', '\'':
			q := sel[i]
			for i++; i < len(sel) && sel[i] != q; i++ {
				if sel[i] == '\\' {
					i++
				}
			}
		case '.':
			var sb strings.Builder
			j := i + 1
			for j < len(sel) {
				ch := sel[j]
				if ch == '\\' && j+1 < len(sel) {
					sb.WriteByte(sel[j+1])
					j += 2
					continue
				}
				if !isIdentByte(ch) {
					break
				}
				sb.WriteByte(ch)
				j++
			}
			if sb.Len() > 0 {
				out = append(out, sb.String())
			}
			i = j - 1
		}
	}
	return out
}

func isIdentByte(ch byte) bool {
	return ch == '-' || ch == '_' ||
		(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') || ch >= 0x80
}
