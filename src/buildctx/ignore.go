// Package buildctx constructs deterministic build contexts: an ignore-
// filtered, lexicographically sorted file manifest whose order anchors
// both the context archive and the cache-relevant content hash.
package buildctx

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Pattern is one parsed ignore rule.
type Pattern struct {
	Raw     string // original line
	Negate  bool   // re-includes a previously excluded path
	DirOnly bool   // trailing-slash form: matches a directory and its contents
	body    string // pattern text without the ! and / markers
}

// ParseIgnoreFile reads dockerignore-style rules. A missing file yields an
// empty list.
func ParseIgnoreFile(path string) ([]Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return ParseIgnore(f)
}

// ParseIgnore parses rules from r, one per line. Blank lines and #
// comments are skipped; order is preserved because later rules override
// earlier ones.
func ParseIgnore(r io.Reader) ([]Pattern, error) {
	var patterns []Pattern

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		p := Pattern{Raw: line}
		if strings.HasPrefix(line, "!") {
			p.Negate = true
			line = strings.TrimSpace(strings.TrimPrefix(line, "!"))
		}
		if strings.HasSuffix(line, "/") {
			p.DirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		p.body = strings.TrimPrefix(line, "./")
		if p.body == "" {
			continue
		}
		patterns = append(patterns, p)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}

// Matcher applies an ordered pattern list with last-match-wins semantics.
type Matcher struct {
	patterns []Pattern
}

// NewMatcher creates a matcher over the parsed rules.
func NewMatcher(patterns []Pattern) *Matcher {
	return &Matcher{patterns: patterns}
}

// Excluded reports whether the relative slash-separated path is dropped
// from the context. Every rule is consulted in order; the last one that
// matches decides, so a negated rule can re-include an excluded path.
func (m *Matcher) Excluded(relpath string) bool {
	excluded := false
	for _, p := range m.patterns {
		if p.matches(relpath) {
			excluded = !p.Negate
		}
	}
	return excluded
}

// matches applies one rule to a file path.
func (p Pattern) matches(relpath string) bool {
	if p.DirOnly {
		// The rule names a directory: any ancestor of the file may match.
		segs := strings.Split(relpath, "/")
		for i := 1; i < len(segs); i++ {
			if matchBody(p.body, strings.Join(segs[:i], "/")) {
				return true
			}
		}
		return false
	}
	return matchBody(p.body, relpath)
}

// matchBody matches a pattern body against a path. Slashed patterns are
// anchored to the context root; wildcard-only patterns apply to the
// basename; plain text matches a whole segment or a basename suffix.
func matchBody(body, relpath string) bool {
	hasWildcard := strings.ContainsAny(body, "*?[")

	if strings.Contains(body, "/") {
		return matchGlob(body, relpath)
	}

	if hasWildcard {
		return matchGlob(body, path.Base(relpath))
	}

	for _, seg := range strings.Split(relpath, "/") {
		if seg == body {
			return true
		}
	}
	return strings.HasSuffix(path.Base(relpath), body)
}

// matchGlob extends filepath.Match with support for "**" (zero or more
// path segments). Patterns without "**" delegate directly to
// filepath.Match.
func matchGlob(pattern, relpath string) bool {
	if !strings.Contains(pattern, "**") {
		matched, _ := filepath.Match(pattern, relpath)
		return matched
	}

	idx := strings.Index(pattern, "**")
	prefix := pattern[:idx]
	suffix := strings.TrimLeft(pattern[idx+2:], "/")

	if prefix != "" {
		prefix = strings.TrimRight(prefix, "/")
		// The prefix must cover whole segments: "vendor/**" must not
		// catch "vendorx/file".
		if relpath != prefix && !strings.HasPrefix(relpath, prefix+"/") {
			return false
		}
		relpath = strings.TrimLeft(strings.TrimPrefix(relpath, prefix), "/")
	}

	if suffix == "" {
		return true
	}

	// Try the suffix against every possible tail of the path.
	parts := strings.Split(relpath, "/")
	for i := 0; i <= len(parts); i++ {
		if matchGlob(suffix, strings.Join(parts[i:], "/")) {
			return true
		}
	}
	return false
}
