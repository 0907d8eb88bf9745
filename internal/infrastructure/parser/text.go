package parser

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var stripPolicy = bluemonday.StrictPolicy()

// plainText strips markup from feed descriptions and collapses whitespace.
func plainText(raw string) string {
	if raw == "" {
		return ""
	}
	text := html.UnescapeString(stripPolicy.Sanitize(raw))
	return strings.Join(strings.Fields(text), " ")
}
