package pattern

import "strings"

// MatchesGlob reports whether s matches a glob pattern with * wildcard
// support, case-insensitively. The cache invalidation path runs this
// against namespace-stripped keys, so only prefix/suffix/contains globs
// are supported; there is no escaping and no multi-segment matching.
func MatchesGlob(s, pattern string) bool {
	pattern = strings.ToLower(pattern)
	s = strings.ToLower(s)

	switch {
	case pattern == "*":
		return true
	case strings.Contains(pattern, "*"):
		switch {
		case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
			// *text* - contains
			core := strings.Trim(pattern, "*")
			return strings.Contains(s, core)
		case strings.HasPrefix(pattern, "*"):
			// *text - ends with
			suffix := strings.TrimPrefix(pattern, "*")
			return strings.HasSuffix(s, suffix)
		case strings.HasSuffix(pattern, "*"):
			// text* - starts with
			prefix := strings.TrimSuffix(pattern, "*")
			return strings.HasPrefix(s, prefix)
		default:
			return s == pattern
		}
	default:
		return s == pattern
	}
}
