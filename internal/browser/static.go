package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/nao1215/pagemirror/internal/model"
)

// defaultMaxPageSize caps the size of a page fetched by Static.
const defaultMaxPageSize int64 = 32 << 20

// Static renders pages with a plain HTTP GET. JavaScript is not executed
// and the hydration wait is ignored.
type Static struct {
	client      *http.Client
	maxPageSize int64
	logger      *slog.Logger
}

var _ Browser = (*Static)(nil)

// StaticOption configures a Static renderer.
type StaticOption func(*Static)

// WithStaticLogger sets the logger.
func WithStaticLogger(logger *slog.Logger) StaticOption {
	return func(s *Static) {
		s.logger = logger
	}
}

// WithMaxPageSize caps the page body size. A cap of 0 or less means no limit.
func WithMaxPageSize(n int64) StaticOption {
	return func(s *Static) {
		s.maxPageSize = n
	}
}

// NewStatic creates a Static renderer that fetches with client.
func NewStatic(client *http.Client, opts ...StaticOption) *Static {
	s := &Static{
		client:      client,
		maxPageSize: defaultMaxPageSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Render fetches target and decodes it to UTF-8. The base URL is the final
// URL after redirects, overridden by a <base href> in the document head.
func (s *Static) Render(ctx context.Context, target string, _ time.Duration) (*model.RenderedPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNavigation, target, err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNavigation, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: status %d", ErrNavigation, target, resp.StatusCode)
	}

	var src io.Reader = resp.Body
	if s.maxPageSize > 0 {
		src = io.LimitReader(resp.Body, s.maxPageSize+1)
	}
	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNavigation, target, err)
	}
	if s.maxPageSize > 0 && int64(len(raw)) > s.maxPageSize {
		return nil, fmt.Errorf("%w: %s: page exceeds %d bytes", ErrNavigation, target, s.maxPageSize)
	}

	reader, err := charset.NewReader(bytes.NewReader(raw), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNavigation, target, err)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNavigation, target, err)
	}

	base := resp.Request.URL
	if href := baseHref(string(body)); href != "" {
		if ref, err := url.Parse(href); err == nil {
			base = base.ResolveReference(ref)
		}
	}

	s.logger.Debug("page fetched", "url", target, "base", base.String(), "html_bytes", len(body))

	return &model.RenderedPage{
		HTML:    string(body),
		BaseURL: base,
	}, nil
}

// Close is a no-op.
func (s *Static) Close() error {
	return nil
}

// baseHref returns the href of the first <base> element, or "".
func baseHref(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "base":
				for hasAttr {
					var key, val []byte
					key, val, hasAttr = z.TagAttr()
					if string(key) == "href" {
						return strings.TrimSpace(string(val))
					}
				}
			case "body":
				return ""
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "head" {
				return ""
			}
		}
	}
}
