package crawler

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"github.com/nao1215/pagemirror/internal/model"
)

// Normalize converts a raw reference found on a page into its canonical
// absolute form. Relative references resolve against base.
//
// The result has a lowercase scheme and host, no default port, no fragment,
// no userinfo, a non-empty path with dot segments removed, and the query
// string exactly as written. On the host of base, http and https on the
// default port are unified to the scheme of base, so a single run never
// stores one of the site's resources twice. Other hosts keep their scheme.
//
// Normalize is idempotent: Normalize(string(n), base) == n.
func Normalize(raw string, base *url.URL) (model.NormalizedURL, error) {
	raw = stripControl(strings.TrimSpace(raw))
	if raw == "" {
		return "", ErrNotFetchable
	}

	if scheme := schemeOf(raw); scheme != "" && scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: %s scheme", ErrNotFetchable, scheme)
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidURL, raw, err)
	}

	u := ref
	if base != nil {
		u = base.ResolveReference(ref)
	}
	if !u.IsAbs() || u.Host == "" || u.Opaque != "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %s scheme", ErrNotFetchable, u.Scheme)
	}

	host, err := canonicalHost(u)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidURL, raw, err)
	}
	u.Host = host
	u.User = nil
	if base != nil && sameDefaultOrigin(u, base) {
		u.Scheme = strings.ToLower(base.Scheme)
	}

	if err := canonicalPath(u); err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidURL, raw, err)
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.ForceQuery = false

	return model.NormalizedURL(u.String()), nil
}

// ParseBase parses a site base URL for use with Normalize.
// The base itself is normalized so that relative references inherit a
// canonical scheme and host.
func ParseBase(raw string) (*url.URL, error) {
	n, err := Normalize(raw, nil)
	if err != nil {
		return nil, err
	}
	return n.Parse()
}

// schemeOf returns the lowercase scheme of raw, or "" when raw has none.
func schemeOf(raw string) string {
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == ':':
			if i == 0 {
				return ""
			}
			return strings.ToLower(raw[:i])
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9', c == '+', c == '-', c == '.':
			if i == 0 {
				return ""
			}
		default:
			return ""
		}
	}
	return ""
}

// stripControl removes ASCII tab and newline characters, which browsers
// ignore inside URLs.
func stripControl(s string) string {
	if !strings.ContainsAny(s, "\t\n\r") {
		return s
	}
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, s)
}

func canonicalHost(u *url.URL) (string, error) {
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", errors.New("empty host")
	}
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		return net.JoinHostPort(host, port), nil
	}
	if strings.Contains(host, ":") {
		return "[" + host + "]", nil
	}
	return host, nil
}

// sameDefaultOrigin reports whether u, already canonical, is on the host of
// base at the default port of its scheme, and base is http or https.
func sameDefaultOrigin(u, base *url.URL) bool {
	bs := strings.ToLower(base.Scheme)
	if bs != "http" && bs != "https" {
		return false
	}
	if u.Port() != "" {
		return false
	}
	return u.Hostname() == strings.ToLower(base.Hostname())
}

// canonicalPath removes dot segments and canonicalizes percent-encoding.
// Encoded slashes are kept encoded because decoding them changes the
// segment structure.
func canonicalPath(u *url.URL) error {
	escaped := u.EscapedPath()
	if !strings.Contains(strings.ToLower(escaped), "%2f") {
		u.Path = cleanPath(u.Path)
		u.RawPath = ""
		return nil
	}

	cleaned := cleanPath(upperHex(escaped))
	decoded, err := url.PathUnescape(cleaned)
	if err != nil {
		return err
	}
	u.Path = decoded
	u.RawPath = cleaned
	return nil
}

// cleanPath collapses dot segments and duplicate slashes, never climbing
// above the root, and keeps a trailing slash.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	trailing := strings.HasSuffix(p, "/") || strings.HasSuffix(p, "/.") || strings.HasSuffix(p, "/..")
	cleaned := path.Clean(p)
	if trailing && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

func upperHex(s string) string {
	b := []byte(s)
	for i := 0; i+2 < len(b); i++ {
		if b[i] == '%' {
			b[i+1] = toUpper(b[i+1])
			b[i+2] = toUpper(b[i+2])
			i += 2
		}
	}
	return string(b)
}

func toUpper(c byte) byte {
	if 'a' <= c && c <= 'f' {
		return c - 'a' + 'A'
	}
	return c
}
