// Package urlmatch compares candidate URLs against configured OAuth redirect
// URIs. Providers append tokens or codes to the callback as query or fragment
// parameters and sometimes vary the trailing slash, so matching is done on
// origin and normalized path only.
package urlmatch

import (
	"net/url"
	"strings"
)

// Matches reports whether candidate points at the same endpoint as
// redirectURI. The comparison is origin-exact and path-exact after trailing
// slashes are stripped; query strings and fragments are ignored. Any parse
// failure on either side yields false.
func Matches(candidate, redirectURI string) bool {
	cu, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	ru, err := url.Parse(redirectURI)
	if err != nil {
		return false
	}
	if origin(cu) != origin(ru) {
		return false
	}
	return normalizePath(cu.Path) == normalizePath(ru.Path)
}

// origin returns the scheme://host portion of a URL, the part browsers treat
// as the security origin.
func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// normalizePath strips trailing slashes; an empty result is treated as "/".
func normalizePath(p string) string {
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}
