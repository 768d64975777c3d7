package clip

import (
	"net/url"
	"strings"
)

// SameResource reports whether a and b name the same resource: same scheme,
// host and path. Query strings and fragments are ignored, so re-signed URLs
// of one object compare equal.
func SameResource(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return stripQuery(a) == stripQuery(b)
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) &&
		strings.EqualFold(ua.Host, ub.Host) &&
		ua.EscapedPath() == ub.EscapedPath()
}

func stripQuery(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i]
	}
	return s
}
