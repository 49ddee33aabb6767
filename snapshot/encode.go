package snapshot

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Prefix starts every favicon resource.
const Prefix = "data:image/svg+xml,"

// ErrNotSVGDataURI is returned by Decode for a resource without Prefix.
var ErrNotSVGDataURI = errors.New("snapshot: not an svg data uri")

const upperhex = "0123456789ABCDEF"

// Encode percent-encodes doc the way encodeURIComponent does and prepends
// Prefix. Only A-Z a-z 0-9 and - _ . ! ~ * ' ( ) pass through unescaped.
func Encode(doc string) string {
	var sb strings.Builder
	sb.Grow(len(Prefix) + len(doc)*3/2)
	sb.WriteString(Prefix)
	for i := 0; i < len(doc); i++ {
		c := doc[i]
		if unreserved(c) {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(upperhex[c>>4])
		sb.WriteByte(upperhex[c&15])
	}
	return sb.String()
}

// Decode reverses Encode.
func Decode(resource string) (string, error) {
	body, ok := strings.CutPrefix(resource, Prefix)
	if !ok {
		return "", ErrNotSVGDataURI
	}
	doc, err := url.PathUnescape(body)
	if err != nil {
		return "", fmt.Errorf("snapshot: decode: %w", err)
	}
	return doc, nil
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
