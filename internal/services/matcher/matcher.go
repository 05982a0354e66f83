// Package matcher evaluates glob-based include/exclude patterns against full
// URLs. Both enqueue-time and discovery-time filtering go through the same
// compiled matcher so the two call sites cannot diverge.
package matcher

import (
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// compiled caches glob compilation; crawl sessions evaluate the same handful
// of patterns against thousands of URLs.
var (
	cacheMu  sync.RWMutex
	compiled = make(map[string]glob.Glob)
)

// compile returns an anchored glob for pattern with '/' as the segment
// separator: '*' stays within a path segment, '**' crosses segments.
func compile(pattern string) (glob.Glob, error) {
	cacheMu.RLock()
	g, ok := compiled[pattern]
	cacheMu.RUnlock()
	if ok {
		return g, nil
	}

	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, err
	}

	cacheMu.Lock()
	compiled[pattern] = g
	cacheMu.Unlock()
	return g, nil
}

// MatchesAny reports whether any pattern matches the full URL
// (scheme+host+path). Invalid patterns are skipped.
func MatchesAny(url string, patterns []string) bool {
	for _, pattern := range patterns {
		g, err := compile(pattern)
		if err != nil {
			continue
		}
		if g.Match(url) {
			return true
		}
	}
	return false
}

// ExpandExcludes normalizes exclude patterns for subpath coverage: every
// pattern that contains no wildcard and does not end in "/" emits both the
// literal pattern and pattern+"/**", so excluding "/support" also rejects
// "/support/foo". Patterns already containing wildcards pass through unchanged.
func ExpandExcludes(patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}

	expanded := make([]string, 0, len(patterns)*2)
	for _, pattern := range patterns {
		expanded = append(expanded, pattern)
		if !strings.ContainsAny(pattern, "*?[{") && !strings.HasSuffix(pattern, "/") {
			expanded = append(expanded, pattern+"/**")
		}
	}
	return expanded
}

// ShouldEnqueue applies the include patterns and the expanded exclude
// patterns to a URL. A URL must match at least one include pattern and no
// exclude pattern.
func ShouldEnqueue(url string, include, exclude []string) bool {
	if MatchesAny(url, ExpandExcludes(exclude)) {
		return false
	}
	return MatchesAny(url, include)
}
