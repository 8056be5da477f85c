package access

import (
	"net/url"
	"strings"
)

// SafeReturnPath returns candidate when it is a same-origin relative path, fallback otherwise.
// Scheme-relative ("//host") and backslash forms are rejected since browsers treat them as hosts.
func SafeReturnPath(candidate, fallback string) string {
	if candidate == "" || !strings.HasPrefix(candidate, "/") {
		return fallback
	}
	if strings.HasPrefix(candidate, "//") || strings.ContainsAny(candidate, "\\\r\n") {
		return fallback
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return fallback
	}
	return candidate
}
