package crawler

import (
	"path"
	"strings"

	"github.com/nao1215/pagemirror/internal/model"
)

// Filter decides which asset URLs are mirrored, based on glob patterns
// applied to the URL path.
//
// A URL matching any ignore pattern is dropped. When follow patterns are
// set, a URL must also match at least one of them.
type Filter struct {
	ignorePatterns []string
	followPatterns []string
}

// NewFilter creates a Filter. Both pattern lists may be empty, in which case
// every URL is allowed.
func NewFilter(ignorePatterns, followPatterns []string) *Filter {
	return &Filter{
		ignorePatterns: ignorePatterns,
		followPatterns: followPatterns,
	}
}

// Allow reports whether u passes the filter.
func (f *Filter) Allow(u model.NormalizedURL) bool {
	if f == nil || (len(f.ignorePatterns) == 0 && len(f.followPatterns) == 0) {
		return true
	}

	parsed, err := u.Parse()
	if err != nil {
		return false
	}
	p := parsed.Path
	if p == "" {
		p = "/"
	}

	for _, pattern := range f.ignorePatterns {
		if matchPattern(pattern, p) {
			return false
		}
	}

	if len(f.followPatterns) == 0 {
		return true
	}
	for _, pattern := range f.followPatterns {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//   - a trailing /* to match everything below a directory
//
// Examples:
//   - "/static/*" matches "/static/app.js", "/static/img/logo.png"
//   - "*.mp4" matches "/media/intro.mp4"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func matchPattern(pattern, p string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(p, prefix+"/") || p == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") {
		if strings.HasSuffix(p, strings.TrimPrefix(pattern, "*")) {
			return true
		}
	}

	if matched, err := path.Match(pattern, p); err == nil && matched {
		return true
	}

	// Bare filename patterns match the last segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := path.Match(pattern, path.Base(p)); err == nil && matched {
			return true
		}
	}
	return false
}
