// Package snapshot renders a tracked subtree plus its styles into a
// self-contained SVG document and encodes it as a data URI, the favicon
// resource published by favisync.
package snapshot

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/favisync/idgen"
)

// darkModeRule keeps text legible on dark browser chrome.
const darkModeRule = `@media (prefers-color-scheme: dark) {
* {
color: white;
}
}`

// Dimensions of the SVG viewport.
type Dimensions struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// DefaultDimensions is the 32x32 favicon size.
var DefaultDimensions = Dimensions{Width: 32, Height: 32}

// OrDefault replaces non-positive sides with the default.
func (d Dimensions) OrDefault() Dimensions {
	if d.Width <= 0 {
		d.Width = DefaultDimensions.Width
	}
	if d.Height <= 0 {
		d.Height = DefaultDimensions.Height
	}
	return d
}

// Input is everything one serialization needs.
type Input struct {
	Markup      string   // tracked root rendered as XHTML
	Styles      []string // relevant style texts, resolver order
	StaticLayer string   // linked stylesheets, concatenated
	Dimensions  Dimensions
}

// Snapshot is one published favicon.
type Snapshot struct {
	ID         string     `json:"id"`       // UUIDv7
	Resource   string     `json:"resource"` // data:image/svg+xml,...
	Markup     string     `json:"markup"`
	MarkupHash string     `json:"markup_hash"` // SHA-256 hex
	Dimensions Dimensions `json:"dimensions"`
	Timestamp  int64      `json:"timestamp"` // epoch milliseconds
}

// Document builds the SVG document text.
func Document(in Input) string {
	dim := in.Dimensions.OrDefault()
	w, h := strconv.Itoa(dim.Width), strconv.Itoa(dim.Height)

	styles := make([]string, len(in.Styles))
	for i, s := range in.Styles {
		styles[i] = StripSourceMaps(s)
	}

	var sb strings.Builder
	sb.WriteString(`<svg fill="none" viewBox="0 0 ` + w + ` ` + h + `" width="` + w + `" height="` + h + `" xmlns="http://www.w3.org/2000/svg">`)
	sb.WriteString(`<foreignObject width="100%" height="100%">`)
	writeStyle(&sb, darkModeRule)
	writeStyle(&sb, strings.Join(styles, "\n"))
	writeStyle(&sb, in.StaticLayer)
	sb.WriteString(`<div xmlns="http://www.w3.org/1999/xhtml" style="width:100%;height:100%">`)
	sb.WriteString(in.Markup)
	sb.WriteString(`</div></foreignObject></svg>`)
	return sb.String()
}

// writeStyle wraps css in CDATA so selectors like "a > b" and "&" survive
// XML parsing byte-for-byte.
func writeStyle(sb *strings.Builder, css string) {
	sb.WriteString("<style><![CDATA[")
	sb.WriteString(strings.ReplaceAll(css, "]]>", "]]]]><![CDATA[>"))
	sb.WriteString("]]></style>")
}

// Serialize builds the SVG document and returns it as a data URI.
func Serialize(in Input) string {
	return Encode(Document(in))
}

// Build serializes in and wraps the resource with its metadata.
func Build(in Input) Snapshot {
	return Snapshot{
		ID:         idgen.New(),
		Resource:   Serialize(in),
		Markup:     in.Markup,
		MarkupHash: HashMarkup(in.Markup),
		Dimensions: in.Dimensions.OrDefault(),
		Timestamp:  time.Now().UnixMilli(),
	}
}

// HashMarkup returns the SHA-256 hex digest of markup.
func HashMarkup(markup string) string {
	h := sha256.Sum256([]byte(markup))
	return fmt.Sprintf("%x", h)
}

// StripSourceMaps drops sourcemap pragma lines. The text is trimmed, split
// on "\n", and every line beginning with "/*# sourceMappingURL=" or
// "/*@ sourceURL=" is removed; the rest keep their order.
func StripSourceMaps(css string) string {
	lines := strings.Split(strings.TrimSpace(css), "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(l, "/*# sourceMappingURL=") || strings.HasPrefix(l, "/*@ sourceURL=") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}
