// Package urlutil turns raw user input into the canonical URL form used as
// the site identity.
package urlutil

import (
	"net/url"
	"strings"
)

const defaultScheme = "http://"

func hasHTTPScheme(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}

// Normalize prepends http:// when raw has no http:// or https:// prefix and
// returns raw unchanged otherwise. Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	if hasHTTPScheme(raw) {
		return raw
	}
	return defaultScheme + raw
}

// Validate reports whether raw, after the same scheme prepending as
// Normalize, parses into a URL with both a scheme and a host.
func Validate(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(Normalize(raw))
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// Hostname returns the host of raw without any port, or raw itself when
// it has none.
func Hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
