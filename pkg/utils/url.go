package utils

import (
	"net/url"
	"path"
	"strings"
)

// ToAbsoluteURL converts a relative URL to an absolute URL given a base URL.
// Unparseable input is returned unchanged.
func ToAbsoluteURL(base, relative string) string {
	relative = strings.TrimSpace(relative)
	if relative == "" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return relative
	}
	relURL, err := url.Parse(relative)
	if err != nil {
		return relative
	}
	return baseURL.ResolveReference(relURL).String()
}

// LastPathSegment returns the final non-empty segment of a URL path.
func LastPathSegment(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// WithQueryParam appends key=value, choosing ? or & as the separator.
func WithQueryParam(rawURL, key, value string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}
