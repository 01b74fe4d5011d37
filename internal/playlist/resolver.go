package playlist

import (
	"net/url"
	"strings"
)

// ResolveURL turns a segment reference into an absolute URL.
//
// Absolute http(s) references are kept as is, references starting with "/"
// are joined with the playlist's scheme and host, and anything else is joined
// with the playlist's directory. Dot segments ("..") are passed through
// untouched.
func ResolveURL(base *url.URL, ref string) string {
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return ref
	}

	if strings.HasPrefix(ref, "//") {
		return base.Scheme + ":" + ref
	}

	origin := base.Scheme + "://" + base.Host
	if strings.HasPrefix(ref, "/") {
		return origin + ref
	}

	return origin + baseDir(base.Path) + "/" + ref
}

// baseDir drops the final path segment and any trailing slash
func baseDir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return strings.TrimRight(path[:idx], "/")
}
