package crawler

import (
	"html"
	"sort"
	"strings"
)

// Replacement maps a raw reference, as it appears in the page, to the
// value that replaces it.
type Replacement struct {
	Raw   string
	Local string
}

// htmlQuoteEntities are the serialized forms of quotes that may enclose a
// reference inside an attribute value.
var htmlQuoteEntities = []string{"&quot;", "&#34;", "&#39;", "&apos;"}

// Rewrite replaces every occurrence of each Raw value in doc with its Local
// value and returns the new document and the number of substitutions.
//
// An occurrence only counts when it is delimited the way a URL is inside
// markup or CSS: by quotes, parentheses, commas, whitespace, '=' or '>'.
// This keeps "/a.css" from matching inside "/a.css.map" or "/x/a.css".
// Both the raw value and its HTML-escaped form are matched. Matches are
// collected against the original document, longest first, so an inserted
// local path is never rewritten again.
func Rewrite(doc string, replacements []Replacement) (string, int) {
	type match struct {
		start, end int
		local      string
	}

	sorted := make([]Replacement, 0, len(replacements))
	seen := make(map[string]bool, len(replacements))
	for _, r := range replacements {
		if r.Raw == "" || r.Raw == r.Local || seen[r.Raw] {
			continue
		}
		seen[r.Raw] = true
		sorted = append(sorted, r)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Raw) > len(sorted[j].Raw)
	})

	var matches []match
	for _, r := range sorted {
		needles := []string{r.Raw}
		if escaped := html.EscapeString(r.Raw); escaped != r.Raw {
			needles = append(needles, escaped)
		}
		if escaped := strings.ReplaceAll(r.Raw, "&", "&amp;"); escaped != r.Raw && escaped != needles[len(needles)-1] {
			needles = append(needles, escaped)
		}

		for _, needle := range needles {
			from := 0
			for {
				i := strings.Index(doc[from:], needle)
				if i < 0 {
					break
				}
				start := from + i
				end := start + len(needle)
				if leftBoundary(doc, start) && rightBoundary(doc, end) {
					matches = append(matches, match{start: start, end: end, local: r.Local})
				}
				from = start + 1
			}
		}
	}
	if len(matches) == 0 {
		return doc, 0
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].start != matches[j].start {
			return matches[i].start < matches[j].start
		}
		return matches[i].end > matches[j].end
	})

	var b strings.Builder
	b.Grow(len(doc))
	last, count := 0, 0
	for _, m := range matches {
		if m.start < last {
			continue
		}
		b.WriteString(doc[last:m.start])
		b.WriteString(m.local)
		last = m.end
		count++
	}
	b.WriteString(doc[last:])
	return b.String(), count
}

func leftBoundary(doc string, i int) bool {
	if i == 0 {
		return true
	}
	switch doc[i-1] {
	case '"', '\'', '(', ',', '=', ' ', '\t', '\n', '\r', '\f':
		return true
	}
	for _, entity := range htmlQuoteEntities {
		if strings.HasSuffix(doc[:i], entity) {
			return true
		}
	}
	return false
}

func rightBoundary(doc string, i int) bool {
	if i == len(doc) {
		return true
	}
	switch doc[i] {
	case '"', '\'', ')', ',', '>', ' ', '\t', '\n', '\r', '\f':
		return true
	}
	for _, entity := range htmlQuoteEntities {
		if strings.HasPrefix(doc[i:], entity) {
			return true
		}
	}
	return false
}
