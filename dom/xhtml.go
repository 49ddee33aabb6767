package dom

import (
	"strings"

	"golang.org/x/net/html"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

// RenderXHTML serialises n as XML-compatible markup: void elements are
// self-closed, text and attribute values are escaped, doctypes dropped.
// The caller must hold the document lock or own the tree.
func RenderXHTML(n *html.Node) string {
	var sb strings.Builder
	renderXHTML(&sb, n)
	return sb.String()
}

// RenderChildrenXHTML serialises the children of n, see RenderXHTML.
func RenderChildrenXHTML(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderXHTML(&sb, c)
	}
	return sb.String()
}

func renderXHTML(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderXHTML(sb, c)
		}
	case html.TextNode:
		textEscaper.WriteString(sb, n.Data)
	case html.CommentNode:
		// "--" is illegal inside an XML comment.
		if !strings.Contains(n.Data, "--") {
			sb.WriteString("<!--")
			sb.WriteString(n.Data)
			sb.WriteString("-->")
		}
	case html.ElementNode:
		sb.WriteByte('<')
		sb.WriteString(n.Data)
		for _, a := range n.Attr {
			sb.WriteByte(' ')
			if a.Namespace != "" {
				sb.WriteString(a.Namespace)
				sb.WriteByte(':')
			}
			sb.WriteString(a.Key)
			sb.WriteString(`="`)
			attrEscaper.WriteString(sb, a.Val)
			sb.WriteByte('"')
		}
		if n.FirstChild == nil && (voidElements[n.Data] || n.Namespace != "") {
			sb.WriteString(" />")
			return
		}
		sb.WriteByte('>')
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderXHTML(sb, c)
		}
		sb.WriteString("</")
		sb.WriteString(n.Data)
		sb.WriteByte('>')
	}
}
