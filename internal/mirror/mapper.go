package mirror

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/sha3"

	"github.com/nao1215/pagemirror/internal/model"
)

const (
	// indexFile names the document stored for directory URLs.
	indexFile = "index.html"

	// pendingMarker ends file names whose extension is decided at fetch time
	// and separates a query hash from the file stem.
	pendingMarker = "@"

	// queryHashLen is the number of hex characters of the query hash kept in
	// file names.
	queryHashLen = 24

	// maxExtLen bounds what counts as a file extension, dot included.
	maxExtLen = 12
)

// Mapper maps normalized URLs to paths under an output root.
//
// Map is a pure function of its input: the same URL always yields the same
// path and distinct URLs yield distinct paths.
type Mapper struct {
	root string
}

// NewMapper creates a Mapper rooted at root.
func NewMapper(root string) *Mapper {
	return &Mapper{root: filepath.Clean(root)}
}

// Root returns the output root.
func (m *Mapper) Root() string {
	return m.root
}

// Map returns the local path of an asset URL.
//
//	https://site.test/                  -> <root>/site.test/@index@
//	https://site.test/css/site.css      -> <root>/site.test/css/site.css
//	https://site.test/css/site.css?v=2  -> <root>/site.test/css/site@<hash>.css
//	https://site.test/api/data          -> <root>/site.test/api/data@
//	http://site.test:8080/a.js          -> <root>/site.test+8080/a.js
func (m *Mapper) Map(u model.NormalizedURL) (string, error) {
	return m.mapURL(u, false)
}

// MapPage returns the local path of a page URL. Pages without a file
// extension are stored as the index of a directory named after the URL
// path, so /en_us/ids maps to en_us/ids/index.html. /en_us/ids/ and
// /en_us/ids/index.html are the same document and map there too.
func (m *Mapper) MapPage(u model.NormalizedURL) (string, error) {
	return m.mapURL(u, true)
}

func (m *Mapper) mapURL(u model.NormalizedURL, page bool) (string, error) {
	parsed, err := url.Parse(string(u))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrUnmappable, u, err)
	}
	hostname := strings.ToLower(parsed.Hostname())
	if hostname == "" {
		return "", fmt.Errorf("%w: %s has no host", ErrUnmappable, u)
	}

	hostDir := escapeSegment(hostname)
	if port := parsed.Port(); port != "" && !isDefaultPort(parsed.Scheme, port) {
		hostDir += "+" + port
	}
	if hostDir == "." || hostDir == ".." {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, u)
	}

	segments, err := decodeSegments(parsed.EscapedPath())
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrUnmappable, u, err)
	}

	// A trailing slash leaves an empty final segment, which is the
	// directory index.
	last := segments[len(segments)-1]
	if page && last != "" && !hasExtension(last) {
		segments = append(segments, "")
		last = ""
	}

	parts := make([]string, 0, len(segments)+2)
	parts = append(parts, m.root, hostDir)
	for _, seg := range segments[:len(segments)-1] {
		if seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %s", ErrPathTraversal, u)
		}
		if seg == "" {
			continue
		}
		parts = append(parts, escapeSegment(seg))
	}
	if last == "." || last == ".." {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, u)
	}
	parts = append(parts, fileName(last, parsed.RawQuery, page))

	local := filepath.Join(parts...)
	if !m.contains(local) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, u)
	}
	return local, nil
}

func (m *Mapper) contains(p string) bool {
	rel, err := filepath.Rel(m.root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// fileName builds the final path element for a decoded last segment.
//
// Pages and assets share the output tree, so their names never overlap
// unless the URLs are equal. A page directory index is index.html. An asset
// directory index starts with the marker, which escapeSegment never emits,
// and a literal asset index.html keeps its dot escaped.
func fileName(last, rawQuery string, page bool) string {
	var hash string
	if rawQuery != "" {
		hash = queryHash(rawQuery)
	}

	if last == "" {
		if page {
			if hash == "" {
				return indexFile
			}
			return "index" + pendingMarker + hash + ".html"
		}
		return pendingName(pendingMarker+"index", hash)
	}

	if hasExtension(last) {
		ext := filepath.Ext(last)
		stem := escapeSegment(strings.TrimSuffix(last, ext))
		if last == indexFile && !page {
			stem = "index%2Ehtml"
			if hash == "" {
				return stem
			}
		}
		if hash != "" {
			return stem + pendingMarker + hash + ext
		}
		return stem + ext
	}

	return pendingName(escapeSegment(last), hash)
}

// pendingName returns stem with the pending marker, and the query hash if
// any. The extension is added once the content type is known.
func pendingName(stem, hash string) string {
	name := stem + pendingMarker
	if hash != "" {
		name += hash + pendingMarker
	}
	return name
}

// hasExtension reports whether name ends in a short alphanumeric extension
// following a non-empty stem.
func hasExtension(name string) bool {
	ext := filepath.Ext(name)
	if len(ext) < 2 || len(ext) > maxExtLen || len(ext) == len(name) {
		return false
	}
	for i := 1; i < len(ext); i++ {
		c := ext[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}

func queryHash(rawQuery string) string {
	sum := sha3.Sum256([]byte(rawQuery))
	return hex.EncodeToString(sum[:])[:queryHashLen]
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

// decodeSegments splits an escaped URL path into decoded segments. The
// leading slash is dropped; a trailing slash yields a final empty segment.
func decodeSegments(escapedPath string) ([]string, error) {
	trimmed := strings.TrimPrefix(escapedPath, "/")
	raw := strings.Split(trimmed, "/")
	out := make([]string, len(raw))
	for i, seg := range raw {
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return nil, err
		}
		out[i] = decoded
	}
	return out, nil
}

// escapeSegment makes a decoded path segment safe as a single file name.
// '%' is always escaped so the result decodes unambiguously, and '@' is
// escaped because it is reserved for markers.
func escapeSegment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r >= utf8.RuneSelf && r != utf8.RuneError {
			b.WriteString(s[i : i+size])
			i += size
			continue
		}
		c := s[i]
		if needsEscape(c) {
			fmt.Fprintf(&b, "%%%02X", c)
		} else {
			b.WriteByte(c)
		}
		i++
	}
	return b.String()
}

func needsEscape(c byte) bool {
	if c < 0x20 || c >= 0x7f {
		return true
	}
	switch c {
	case '%', '/', '\\', '?', '@', ':', '*', '"', '<', '>', '|', '#':
		return true
	}
	return false
}

// HasPendingExt reports whether a mapped path still needs its extension.
func HasPendingExt(p string) bool {
	return strings.HasSuffix(p, pendingMarker)
}

// WithExt completes a pending path with ext (including the dot). Paths that
// are not pending, and empty extensions, are returned unchanged.
func WithExt(p, ext string) string {
	if !HasPendingExt(p) || ext == "" {
		return p
	}
	return p + ext
}

// Existing returns the path of a file already stored for the mapped path p.
// For a pending path, a file completed with any extension counts.
func Existing(p string) (string, bool) {
	if !HasPendingExt(p) {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			return "", false
		}
		return p, true
	}

	dir, base := filepath.Split(p)
	entries, err := os.ReadDir(filepath.Clean(dir))
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if name == base {
			return filepath.Join(dir, name), true
		}
		if rest, ok := strings.CutPrefix(name, base+"."); ok && hasExtension("x."+rest) {
			return filepath.Join(dir, name), true
		}
	}
	return "", false
}

// RelativeRef returns the URL path that links fromFile to toFile, suitable
// for use inside fromFile's markup.
func RelativeRef(fromFile, toFile string) (string, error) {
	rel, err := filepath.Rel(filepath.Dir(fromFile), toFile)
	if err != nil {
		return "", err
	}
	segments := strings.Split(filepath.ToSlash(rel), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/"), nil
}
