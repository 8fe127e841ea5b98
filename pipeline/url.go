package pipeline

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

// ErrInvalidURL is returned when no absolute http(s) URL can be built for an attachment.
var ErrInvalidURL = errors.New("pipeline: invalid attachment url")

// ResolveURL returns urlPath when it is already absolute, otherwise base (or defaultBase when base
// is empty) with trailing slashes removed, followed by urlPath.
func ResolveURL(urlPath, base, defaultBase string) (string, error) {
	if isAbsoluteHTTP(urlPath) {
		return urlPath, nil
	}
	effective := base
	if effective == "" {
		effective = defaultBase
	}
	full := urlPath
	if effective != "" {
		full = strings.TrimRight(effective, "/") + urlPath
	}
	if full == "" || !isAbsoluteHTTP(full) {
		return "", ErrInvalidURL
	}
	return full, nil
}

func isAbsoluteHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// extFromURL returns the lower-cased extension of the URL path without its dot.
func extFromURL(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
}
