package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/pagemirror/internal/browser"
	"github.com/nao1215/pagemirror/internal/fetch"
	"github.com/nao1215/pagemirror/internal/mirror"
	"github.com/nao1215/pagemirror/internal/model"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// templateBrowser renders every target with the same HTML.
type templateBrowser struct {
	html string
	fail map[string]error
}

func (b *templateBrowser) Render(_ context.Context, target string, _ time.Duration) (*model.RenderedPage, error) {
	for suffix, err := range b.fail {
		if strings.HasSuffix(target, suffix) {
			return nil, err
		}
	}
	base, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	return &model.RenderedPage{
		HTML:               b.html,
		PerformanceEntries: []string{"/app.js"},
		BaseURL:            base,
	}, nil
}

func (b *templateBrowser) Close() error { return nil }

type recorder struct {
	mu       sync.Mutex
	pages    []*model.ScrapeResult
	assets   int
	finished int
}

func (r *recorder) RecordPage(_ context.Context, page *model.ScrapeResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages = append(r.pages, page)
	return nil
}

func (r *recorder) RecordAssets(_ context.Context, _ string, outcomes []model.AssetOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets += len(outcomes)
	return nil
}

func (r *recorder) Finish(_ context.Context, total int) error {
	r.finished = total
	return nil
}

// site serves a stylesheet and a script and counts requests per path.
type site struct {
	srv  *httptest.Server
	hits sync.Map
}

func newSite(t *testing.T) *site {
	t.Helper()
	s := &site{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := s.hits.LoadOrStore(r.URL.Path, new(atomic.Int64))
		n.(*atomic.Int64).Add(1) //nolint:forcetypeassert // only *atomic.Int64 is stored

		switch r.URL.Path {
		case "/site.css":
			w.Header().Set("Content-Type", "text/css")
			_, _ = w.Write([]byte("body{color:red}")) //nolint:errcheck // test server
		case "/app.js":
			w.Header().Set("Content-Type", "text/javascript")
			_, _ = w.Write([]byte("console.log(1)")) //nolint:errcheck // test server
		case "/api/data":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ok":true}`)) //nolint:errcheck // test server
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *site) count(path string) int64 {
	n, ok := s.hits.Load(path)
	if !ok {
		return 0
	}
	return n.(*atomic.Int64).Load() //nolint:forcetypeassert // only *atomic.Int64 is stored
}

const pageHTML = `<html><head>
<link rel="stylesheet" href="/site.css">
<script src="/app.js"></script>
</head><body>
<img src="/missing.png">
<div data-url="/api/data"></div>
<script src="/api/data"></script>
</body></html>`

func TestScraper(t *testing.T) {
	t.Parallel()

	t.Run("two pages share one stylesheet", func(t *testing.T) {
		t.Parallel()

		s := newSite(t)
		root := t.TempDir()
		rec := &recorder{}

		sc, err := New(s.srv.URL, &templateBrowser{html: pageHTML}, fetch.New(fetch.WithLogger(discard)),
			WithOutputDir(root),
			WithHydrationWait(0),
			WithLogger(discard),
			WithRecorder(rec),
		)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		first, err := sc.ScrapePage(t.Context(), "en_us/ids")
		if err != nil {
			t.Fatalf("ScrapePage(ids) error = %v", err)
		}
		if first.Found != 4 || first.New != 4 || first.Downloaded != 3 || first.Failed != 1 {
			t.Errorf("first page = found %d new %d downloaded %d failed %d, want 4/4/3/1",
				first.Found, first.New, first.Downloaded, first.Failed)
		}
		if !first.Saved() {
			t.Errorf("first page state = %s, want saved", first.State)
		}

		second, err := sc.ScrapePage(t.Context(), "en_us/faq")
		if err != nil {
			t.Fatalf("ScrapePage(faq) error = %v", err)
		}
		if second.Found != 4 || second.New != 0 || second.Downloaded != 0 {
			t.Errorf("second page = found %d new %d downloaded %d, want 4/0/0",
				second.Found, second.New, second.Downloaded)
		}

		total, err := sc.Finish(t.Context())
		if err != nil {
			t.Fatalf("Finish() error = %v", err)
		}
		if total != 3 {
			t.Errorf("Finish() = %d, want 3", total)
		}
		if rec.finished != 3 || len(rec.pages) != 2 || rec.assets != 4 {
			t.Errorf("recorder = finished %d pages %d assets %d, want 3/2/4",
				rec.finished, len(rec.pages), rec.assets)
		}

		if got := s.count("/site.css"); got != 1 {
			t.Errorf("site.css requested %d times, want 1", got)
		}

		mapper := mirror.NewMapper(root)
		cssPath, err := mapper.Map(model.NormalizedURL(s.srv.URL + "/site.css"))
		if err != nil {
			t.Fatal(err)
		}
		css, err := os.ReadFile(cssPath) //nolint:gosec // test file
		if err != nil {
			t.Fatalf("stylesheet not mirrored: %v", err)
		}
		if string(css) != "body{color:red}" {
			t.Errorf("stylesheet = %q", css)
		}

		dataPath, err := mapper.Map(model.NormalizedURL(s.srv.URL + "/api/data"))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(mirror.WithExt(dataPath, ".json")); err != nil {
			t.Errorf("extensionless asset not completed from media type: %v", err)
		}

		for _, res := range []*model.ScrapeResult{first, second} {
			html, err := os.ReadFile(res.LocalPath)
			if err != nil {
				t.Fatalf("page %s not saved: %v", res.Path, err)
			}
			if !strings.Contains(string(html), `href="../../site.css"`) {
				t.Errorf("page %s stylesheet not rewritten:\n%s", res.Path, html)
			}
			if !strings.Contains(string(html), `src="/missing.png"`) {
				t.Errorf("page %s failed asset was rewritten:\n%s", res.Path, html)
			}
		}

		summary := sc.Summary()
		if summary.SavedPages() != 2 || summary.TotalAssets != 3 || summary.FailedAssets() != 1 {
			t.Errorf("Summary() = saved %d total %d failed %d",
				summary.SavedPages(), summary.TotalAssets, summary.FailedAssets())
		}
	})

	t.Run("navigation failure does not stop the run", func(t *testing.T) {
		t.Parallel()

		s := newSite(t)
		b := &templateBrowser{
			html: `<html><head><link rel="stylesheet" href="/site.css"></head></html>`,
			fail: map[string]error{"/broken": errors.New("net::ERR_NAME_NOT_RESOLVED")},
		}
		sc, err := New(s.srv.URL, b, fetch.New(fetch.WithLogger(discard)),
			WithOutputDir(t.TempDir()),
			WithHydrationWait(0),
			WithLogger(discard),
		)
		if err != nil {
			t.Fatal(err)
		}

		res, err := sc.ScrapePage(t.Context(), "broken")
		if !errors.Is(err, browser.ErrNavigation) {
			t.Fatalf("ScrapePage(broken) error = %v, want ErrNavigation", err)
		}
		if res.State != model.PageStateFailed || res.Error == "" {
			t.Errorf("failed page result = %+v", res)
		}

		if _, err := sc.ScrapePage(t.Context(), "ok"); err != nil {
			t.Fatalf("ScrapePage(ok) error = %v", err)
		}
		total, err := sc.Finish(t.Context())
		if err != nil {
			t.Fatal(err)
		}
		if total != 2 {
			t.Errorf("Finish() = %d, want 2", total)
		}

		summary := sc.Summary()
		if summary.SavedPages() != 1 || summary.FailedPages() != 1 {
			t.Errorf("summary = saved %d failed %d, want 1/1", summary.SavedPages(), summary.FailedPages())
		}
	})

	t.Run("unavailable browser", func(t *testing.T) {
		t.Parallel()

		b := &templateBrowser{fail: map[string]error{"": fmt.Errorf("%w: dial", browser.ErrUnavailable)}}
		sc, err := New("https://site.test", b, fetch.New(), WithOutputDir(t.TempDir()), WithLogger(discard))
		if err != nil {
			t.Fatal(err)
		}
		_, err = sc.ScrapePage(t.Context(), "x")
		if !IsUnavailable(err) {
			t.Errorf("IsUnavailable(%v) = false", err)
		}
	})

	t.Run("invalid website", func(t *testing.T) {
		t.Parallel()

		if _, err := New("mailto:someone@example.com", &templateBrowser{}, fetch.New()); err == nil {
			t.Error("New() accepted a non-http website")
		}
	})
}

func TestPageURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		website string
		path    string
		want    model.NormalizedURL
	}{
		{"https://site.test", "en_us/ids", "https://site.test/en_us/ids"},
		{"https://site.test/", "/en_us/ids", "https://site.test/en_us/ids"},
		{"https://site.test", "", "https://site.test/"},
		{"https://site.test/docs/", "intro", "https://site.test/docs/intro"},
		{"https://SITE.test:443", "a?b=1#top", "https://site.test/a?b=1"},
		{"https://site.test", "https://site.test/other", "https://site.test/other"},
	}

	for _, tt := range tests {
		t.Run(tt.website+"|"+tt.path, func(t *testing.T) {
			t.Parallel()

			sc, err := New(tt.website, &templateBrowser{}, fetch.New())
			if err != nil {
				t.Fatal(err)
			}
			got, err := sc.PageURL(tt.path)
			if err != nil {
				t.Fatalf("PageURL(%q) error = %v", tt.path, err)
			}
			if got != tt.want {
				t.Errorf("PageURL(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
