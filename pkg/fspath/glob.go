package fspath

import (
	"regexp"
	"strings"
	"sync"

	"github.com/marmos91/fsx/pkg/fserrors"
)

// Matcher is a compiled glob pattern anchored at both ends.
//
// Supported syntax:
//   - "*"  matches any characters except "/"
//   - "**" matches any characters including "/"
//   - a trailing "/**" matches the prefix itself or any descendant, so
//     "/a/**" matches "/a", "/a/b" and "/a/b/c"
//   - "**/" matches zero or more whole path segments
type Matcher struct {
	pattern string
	re      *regexp.Regexp
}

// Pattern returns the original (normalized) pattern string.
func (m *Matcher) Pattern() string {
	return m.pattern
}

// Match reports whether the concrete path matches the compiled pattern.
func (m *Matcher) Match(path string) bool {
	return m.re.MatchString(path)
}

// Compile translates a glob pattern into an anchored Matcher.
func Compile(pattern string) (*Matcher, error) {
	re, err := regexp.Compile("^" + globToRegexp(pattern) + "$")
	if err != nil {
		return nil, fserrors.NewInvalidArgument("invalid pattern: " + pattern)
	}
	return &Matcher{pattern: pattern, re: re}, nil
}

func globToRegexp(pattern string) string {
	// "/a/**" must also match "/a" itself, so the trailing "/**" becomes an
	// optional group before the anchors are applied.
	var descendants bool
	if strings.HasSuffix(pattern, "/**") {
		pattern = strings.TrimSuffix(pattern, "/**")
		descendants = true
	}

	var sb strings.Builder
	i := 0
	for i < len(pattern) {
		switch {
		case strings.HasPrefix(pattern[i:], "**/"):
			// Zero or more whole segments, including the trailing slash.
			sb.WriteString("(?:[^/]+/)*")
			i += 3
		case strings.HasPrefix(pattern[i:], "**"):
			sb.WriteString(".*")
			i += 2
		case pattern[i] == '*':
			sb.WriteString("[^/]*")
			i++
		default:
			sb.WriteString(regexp.QuoteMeta(string(pattern[i])))
			i++
		}
	}

	if descendants {
		sb.WriteString("(?:/.*)?")
	}
	return sb.String()
}

// Cache compiles patterns on demand and memoizes the result. One cache is
// owned per coordinator instance (the subscription registry holds one); it
// is not package-level state.
type Cache struct {
	mu       sync.RWMutex
	matchers map[string]*Matcher
}

// NewCache creates an empty pattern cache.
func NewCache() *Cache {
	return &Cache{matchers: make(map[string]*Matcher)}
}

// Get returns the compiled matcher for pattern, compiling and caching it on
// first use.
func (c *Cache) Get(pattern string) (*Matcher, error) {
	c.mu.RLock()
	m, ok := c.matchers[pattern]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	m, err := Compile(pattern)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.matchers[pattern] = m
	c.mu.Unlock()
	return m, nil
}

// Match evaluates pattern against path through the cache. A pattern without
// wildcards degrades to exact string comparison.
func (c *Cache) Match(pattern, path string) bool {
	if !IsPattern(pattern) {
		return pattern == path
	}
	m, err := c.Get(pattern)
	if err != nil {
		return false
	}
	return m.Match(path)
}

// Len returns the number of cached patterns.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.matchers)
}
