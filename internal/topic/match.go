package topic

import "strings"

// Match reports whether topic matches the subscription pattern, where
// "+" matches exactly one level and a trailing "#" matches any number of
// remaining levels, including none.
func Match(pattern, topic string) bool {
	if pattern == "" || topic == "" {
		return false
	}
	if pattern == "#" {
		return !strings.HasPrefix(topic, "$")
	}
	pl := strings.Split(pattern, "/")
	tl := strings.Split(topic, "/")
	// Wildcards at the first level never match system topics.
	if strings.HasPrefix(topic, "$") && (pl[0] == "+" || pl[0] == "#") {
		return false
	}
	for i, p := range pl {
		if p == "#" {
			return i == len(pl)-1
		}
		if i >= len(tl) {
			return false
		}
		if p != "+" && p != tl[i] {
			return false
		}
	}
	return len(pl) == len(tl)
}

// MatchAny reports whether topic matches one of patterns.
func MatchAny(patterns []string, topic string) bool {
	for _, p := range patterns {
		if Match(p, topic) {
			return true
		}
	}
	return false
}

// ValidPattern reports whether pattern is a well-formed subscription filter.
func ValidPattern(pattern string) bool {
	if pattern == "" {
		return false
	}
	levels := strings.Split(pattern, "/")
	for i, l := range levels {
		switch {
		case l == "#":
			if i != len(levels)-1 {
				return false
			}
		case l == "+":
		case strings.ContainsAny(l, "+#"):
			return false
		}
	}
	return true
}
