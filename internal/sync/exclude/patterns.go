package exclude

import (
	"path"
	"strings"
)

// Matcher decides which root-relative, slash-separated paths the walker skips.
// Supported forms: "dir/" (a directory and everything under it), globs
// matched against the whole path or the base name, and literal names.
type Matcher struct {
	patterns []string
}

// New builds a matcher from user patterns. Blank entries and "#" comments
// are ignored. A nil or empty matcher excludes nothing.
func New(patterns []string) *Matcher {
	var cleaned []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		cleaned = append(cleaned, strings.TrimPrefix(p, "./"))
	}
	return &Matcher{patterns: cleaned}
}

// With returns a matcher that also excludes the given literal root-relative paths
func (m *Matcher) With(paths ...string) *Matcher {
	var patterns []string
	if m != nil {
		patterns = append(patterns, m.patterns...)
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		patterns = append(patterns, "/"+strings.TrimPrefix(p, "/"))
	}
	return &Matcher{patterns: patterns}
}

// Patterns returns the active patterns
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}

func (m *Matcher) IsExcluded(relPath string, isDir bool) bool {
	if m == nil {
		return false
	}
	relPath = strings.TrimPrefix(relPath, "./")
	base := path.Base(relPath)
	for _, p := range m.patterns {
		// Leading slash anchors a literal path to the root
		if strings.HasPrefix(p, "/") {
			if relPath == p[1:] {
				return true
			}
			continue
		}
		if strings.HasSuffix(p, "/") {
			dirPattern := strings.TrimSuffix(p, "/")
			if !isDir {
				continue
			}
			if strings.Contains(dirPattern, "/") {
				if relPath == dirPattern {
					return true
				}
				continue
			}
			if ok, _ := path.Match(dirPattern, base); ok {
				return true
			}
			continue
		}
		if strings.ContainsAny(p, "*?[]") {
			if ok, _ := path.Match(p, relPath); ok {
				return true
			}
			if ok, _ := path.Match(p, base); ok {
				return true
			}
			continue
		}
		if relPath == p || base == p {
			return true
		}
	}
	return false
}
