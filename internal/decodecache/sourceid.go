package decodecache

import (
	"net/url"
	"strings"
)

var wrapperHosts = map[string]struct{}{
	"news.google.com": {},
}

// IsWrapped reports whether link points at a known redirect-wrapping host.
func IsWrapped(link string) bool {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return false
	}
	_, ok := wrapperHosts[strings.ToLower(u.Hostname())]
	return ok
}

// ExtractSourceID returns the opaque id of a wrapped link such as
// https://news.google.com/rss/articles/<id>?oc=5. It is pure and reports
// false for any link that does not have that shape.
func ExtractSourceID(link string) (string, bool) {
	if !IsWrapped(link) {
		return "", false
	}

	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", false
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segments {
		if seg != "articles" && seg != "read" {
			continue
		}
		if i+1 < len(segments) && segments[i+1] != "" {
			return segments[i+1], true
		}
	}
	return "", false
}
