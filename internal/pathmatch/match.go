// Package pathmatch matches request paths against configured path patterns.
package pathmatch

import (
	"path"
	"strings"
)

// Matcher matches request paths against a fixed set of patterns:
//   - /img/ (trailing slash) matches /img and everything below it
//   - /robots.txt matches only itself
//   - /blog/*/cover.png matches one arbitrary segment in place of *
//   - /assets/** matches /assets and anything under it
//
// Request paths are cleaned before matching, so dot segments cannot climb
// out of a pattern.
type Matcher struct {
	patterns []string
}

// New creates a matcher. A matcher without patterns matches nothing.
func New(patterns []string) *Matcher {
	return &Matcher{patterns: append([]string(nil), patterns...)}
}

// Match reports whether requestPath matches any pattern
func (m *Matcher) Match(requestPath string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	requestPath = clean(requestPath)
	for _, pattern := range m.patterns {
		if match(pattern, requestPath) {
			return true
		}
	}
	return false
}

// clean gives p a leading slash and no trailing slash
func clean(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func match(pattern, requestPath string) bool {
	if strings.HasSuffix(pattern, "/**") {
		pattern = strings.TrimSuffix(pattern, "**")
	}

	if strings.HasSuffix(pattern, "/") && !strings.Contains(pattern, "*") {
		dir := clean(pattern)
		return dir == "/" || requestPath == dir || strings.HasPrefix(requestPath, dir+"/")
	}

	if !strings.Contains(pattern, "*") {
		return clean(pattern) == requestPath
	}

	prefixOnly := strings.HasSuffix(pattern, "/")
	patternParts := strings.Split(clean(pattern), "/")
	pathParts := strings.Split(requestPath, "/")

	if prefixOnly {
		if len(pathParts) < len(patternParts) {
			return false
		}
		pathParts = pathParts[:len(patternParts)]
	} else if len(patternParts) != len(pathParts) {
		return false
	}

	for i, part := range patternParts {
		if part == "*" {
			if pathParts[i] == "" {
				return false
			}
			continue
		}
		if part != pathParts[i] {
			return false
		}
	}
	return true
}
