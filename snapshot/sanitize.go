package snapshot

import (
	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer cleans markup before it is embedded.
type Sanitizer interface {
	Sanitize(markup string) string
}

// NewSanitizer returns a bluemonday policy for favicon markup: user
// generated content plus class and style attributes. Scripts, event
// handlers and unknown elements are removed.
func NewSanitizer() Sanitizer {
	p := bluemonday.UGCPolicy()
	p.AllowStyling()
	p.AllowAttrs("style").Globally()
	return p
}
