package protect

import "strings"

// globMatch matches a slash-separated path against a glob pattern.
// "**" matches any number of segments, "*" matches within one segment.
func globMatch(path, pattern string) bool {
	return matchSegments(strings.Split(path, "/"), strings.Split(pattern, "/"))
}

func matchSegments(path, pattern []string) bool {
	for len(pattern) > 0 {
		head := pattern[0]
		if head == "**" {
			if len(pattern) == 1 {
				return true
			}
			for skip := 0; skip <= len(path); skip++ {
				if matchSegments(path[skip:], pattern[1:]) {
					return true
				}
			}
			return false
		}
		if len(path) == 0 || !segmentMatch(path[0], head) {
			return false
		}
		path = path[1:]
		pattern = pattern[1:]
	}
	return len(path) == 0
}

// segmentMatch matches one path segment against one pattern segment,
// honoring single-segment * wildcards.
func segmentMatch(segment, pattern string) bool {
	if pattern == "*" || pattern == segment {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}

	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(segment, parts[0]) {
		return false
	}
	segment = segment[len(parts[0]):]

	last := len(parts) - 1
	for i := 1; i < last; i++ {
		idx := strings.Index(segment, parts[i])
		if idx < 0 {
			return false
		}
		segment = segment[idx+len(parts[i]):]
	}
	return strings.HasSuffix(segment, parts[last])
}
