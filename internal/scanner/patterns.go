// Package scanner discovers the files and objects a directory transfer
// moves, filtered by include and exclude glob patterns.
package scanner

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Matcher filters slash-separated relative paths. Exclude patterns take
// precedence; when include patterns are set a path must match one of them.
type Matcher struct {
	include []string
	exclude []string
}

// NewMatcher validates the patterns and returns a matcher for them.
func NewMatcher(include, exclude []string) (*Matcher, error) {
	for _, list := range [][]string{include, exclude} {
		for i, pattern := range list {
			if err := validatePattern(pattern); err != nil {
				return nil, &PatternError{Pattern: pattern, Index: i, Err: err}
			}
		}
	}
	return &Matcher{include: include, exclude: exclude}, nil
}

// Match reports whether rel passes the filters.
func (m *Matcher) Match(rel string) bool {
	if m == nil {
		return true
	}
	for _, pattern := range m.exclude {
		if matches(rel, pattern) {
			return false
		}
	}
	if len(m.include) == 0 {
		return true
	}
	for _, pattern := range m.include {
		if matches(rel, pattern) {
			return true
		}
	}
	return false
}

// matches supports path.Match syntax plus a single ** wildcard and
// directory patterns ending in a slash.
func matches(rel, pattern string) bool {
	if dir, ok := strings.CutSuffix(pattern, "/"); ok {
		return rel == dir || strings.HasPrefix(rel, dir+"/")
	}

	if prefix, suffix, ok := strings.Cut(pattern, "**"); ok {
		if !strings.HasPrefix(rel, prefix) {
			return false
		}
		rest := strings.TrimPrefix(rel, prefix)
		if suffix == "" {
			return true
		}
		// Try the suffix against every trailing segment boundary.
		suffix = strings.TrimPrefix(suffix, "/")
		for {
			if ok, _ := path.Match(suffix, rest); ok {
				return true
			}
			i := strings.IndexByte(rest, '/')
			if i < 0 {
				return false
			}
			rest = rest[i+1:]
		}
	}

	if ok, _ := path.Match(pattern, rel); ok {
		return true
	}
	// Patterns without a slash also match the base name.
	if !strings.Contains(pattern, "/") {
		ok, _ := path.Match(pattern, path.Base(rel))
		return ok
	}
	return false
}

func validatePattern(pattern string) error {
	if pattern == "" {
		return errors.New("empty pattern")
	}
	if strings.Count(pattern, "**") > 1 {
		return errors.New("at most one ** wildcard is supported")
	}
	_, err := path.Match(strings.ReplaceAll(pattern, "**", "*"), "probe")
	return err
}

// PatternError represents an error with a pattern.
type PatternError struct {
	Pattern string
	Index   int
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern at index %d '%s': %v", e.Index, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}
