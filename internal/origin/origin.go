// Package origin classifies image URLs against the configured allowlist.
package origin

import (
	"net/url"
	"strings"
)

// ParseAllowlist splits a comma-separated origin list, dropping blanks.
func ParseAllowlist(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// IsExternal reports whether rawURL points at a host outside allowed.
// URLs without a host are same-origin references and never external.
// An empty allowlist makes every absolute URL external.
func IsExternal(rawURL string, allowed []string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	for _, origin := range allowed {
		origin = normalizeOrigin(origin)
		if origin == "" {
			continue
		}
		if host == origin || strings.HasSuffix(host, "."+origin) {
			return false
		}
	}
	return true
}

func hostOf(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

func normalizeOrigin(origin string) string {
	origin = strings.ToLower(strings.TrimSpace(origin))
	origin = strings.TrimPrefix(origin, "https://")
	origin = strings.TrimPrefix(origin, "http://")
	origin = strings.TrimRight(origin, "/")
	return strings.TrimPrefix(origin, "www.")
}
