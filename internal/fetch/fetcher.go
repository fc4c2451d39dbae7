package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/nao1215/pagemirror/internal/mirror"
	"github.com/nao1215/pagemirror/internal/model"
)

// DefaultMaxBodySize caps a single response body at 256 MiB.
const DefaultMaxBodySize int64 = 256 << 20

// Fetcher downloads single assets into the mirror.
// It is safe for concurrent use.
type Fetcher struct {
	client      *http.Client
	limiter     *rate.Limiter
	maxBodySize int64
	logger      *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the HTTP client. The default is NewHTTPClient().
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithRateLimit limits requests to rps per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(f *Fetcher) {
		if rps <= 0 {
			f.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxBodySize caps the size of a response body. Zero or negative
// disables the cap.
func WithMaxBodySize(n int64) Option {
	return func(f *Fetcher) {
		f.maxBodySize = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		maxBodySize: DefaultMaxBodySize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		// NewHTTPClient only fails on an invalid proxy, which is not set here.
		client, _ := NewHTTPClient() //nolint:errcheck // no proxy configured
		f.client = client
	}
	return f
}

// Fetch downloads u and writes the body to dest. When dest carries a
// pending extension marker, the extension inferred from the response media
// type is appended; the returned LocalPath is the final path.
//
// A non-2xx status returns *FetchError and a transport failure returns
// *NetworkError. Nothing is written on failure.
func (f *Fetcher) Fetch(ctx context.Context, u model.NormalizedURL, dest string) (*model.FetchResult, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &NetworkError{URL: u, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, string(u), nil)
	if err != nil {
		return nil, &NetworkError{URL: u, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrTooManyRedirects) {
			return nil, fmt.Errorf("fetch %s: %w", u, ErrTooManyRedirects)
		}
		return nil, &NetworkError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10)) //nolint:errcheck // drain for connection reuse
		return nil, &FetchError{URL: u, StatusCode: resp.StatusCode}
	}

	if f.maxBodySize > 0 && resp.ContentLength > f.maxBodySize {
		return nil, fmt.Errorf("fetch %s: %w: %d bytes", u, ErrBodyTooLarge, resp.ContentLength)
	}

	contentType := mediaType(resp.Header.Get("Content-Type"))
	local := dest
	if mirror.HasPendingExt(dest) {
		local = mirror.WithExt(dest, mirror.ExtensionForType(contentType))
	}

	var body io.Reader = resp.Body
	if f.maxBodySize > 0 {
		body = &cappedReader{r: resp.Body, remaining: f.maxBodySize}
	}

	n, err := mirror.WriteAtomic(local, body)
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			return nil, fmt.Errorf("fetch %s: %w", u, ErrBodyTooLarge)
		}
		if ctx.Err() != nil {
			return nil, &NetworkError{URL: u, Err: ctx.Err()}
		}
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}

	f.logger.Debug("asset fetched",
		"url", u,
		"status", resp.StatusCode,
		"content_type", contentType,
		"bytes", n,
		"path", local,
	)

	return &model.FetchResult{
		URL:          u,
		FinalURL:     resp.Request.URL.String(),
		LocalPath:    local,
		ContentType:  contentType,
		StatusCode:   resp.StatusCode,
		BytesWritten: n,
	}, nil
}

// mediaType strips parameters from a Content-Type header value.
func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mt
}

// cappedReader fails with ErrBodyTooLarge once more than remaining bytes
// have been read.
type cappedReader struct {
	r         io.Reader
	remaining int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		return 0, ErrBodyTooLarge
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, ErrBodyTooLarge
	}
	return n, err
}
