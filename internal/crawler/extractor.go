package crawler

import (
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/pagemirror/internal/model"
)

var (
	// cssURLPattern matches url(...) with or without quotes.
	cssURLPattern = regexp.MustCompile(`url\(\s*(?:"([^"]*)"|'([^']*)'|([^)'"\s]*))\s*\)`)

	// cssImportPattern matches @import "..." without url().
	cssImportPattern = regexp.MustCompile(`@import\s+(?:"([^"]+)"|'([^']+)')`)
)

// assetRels are the link relations whose href is a page asset.
var assetRels = map[string]bool{
	"stylesheet":       true,
	"preload":          true,
	"modulepreload":    true,
	"icon":             true,
	"apple-touch-icon": true,
	"mask-icon":        true,
}

// Extractor collects the asset references of a rendered page.
type Extractor struct {
	logger *slog.Logger
	filter *Filter
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithLogger sets the logger used for skipped references.
func WithLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// WithFilter sets the ignore/follow filter applied to every reference.
func WithFilter(f *Filter) ExtractorOption {
	return func(e *Extractor) {
		e.filter = f
	}
}

// NewExtractor creates an Extractor.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns every asset reference of the page, in discovery order and
// including duplicates. Performance entries come first, followed by DOM
// references (images, scripts and links, media, then CSS url() values).
//
// References that are not fetchable are dropped quietly; references that
// fail to normalize are logged at debug level and dropped. Extract never
// fails as a whole.
func (e *Extractor) Extract(page *model.RenderedPage) []model.AssetReference {
	c := &collector{
		extractor: e,
		page:      page,
		refs:      make([]model.AssetReference, 0, len(page.PerformanceEntries)),
	}

	for _, entry := range page.PerformanceEntries {
		c.add(entry, model.SourcePerformance)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		e.logger.Debug("failed to parse page HTML", "error", err)
		return c.refs
	}

	c.images(doc)
	c.scriptsAndLinks(doc)
	c.media(doc)
	c.styles(doc)

	return c.refs
}

// Unique returns the first reference for each URL, preserving order.
func Unique(refs []model.AssetReference) []model.AssetReference {
	seen := make(map[model.NormalizedURL]bool, len(refs))
	out := make([]model.AssetReference, 0, len(refs))
	for _, ref := range refs {
		if seen[ref.URL] {
			continue
		}
		seen[ref.URL] = true
		out = append(out, ref)
	}
	return out
}

type collector struct {
	extractor *Extractor
	page      *model.RenderedPage
	refs      []model.AssetReference
}

func (c *collector) add(raw string, source model.Source) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}

	u, err := Normalize(raw, c.page.BaseURL)
	if err != nil {
		if !errors.Is(err, ErrNotFetchable) {
			c.extractor.logger.Debug("skipping reference", "raw", raw, "source", source, "error", err)
		}
		return
	}
	if !c.extractor.filter.Allow(u) {
		c.extractor.logger.Debug("reference filtered", "url", u, "source", source)
		return
	}

	c.refs = append(c.refs, model.AssetReference{Raw: raw, URL: u, Source: source})
}

func (c *collector) attr(s *goquery.Selection, name string, source model.Source) {
	if v, ok := s.Attr(name); ok {
		c.add(v, source)
	}
}

func (c *collector) srcset(s *goquery.Selection, name string, source model.Source) {
	if v, ok := s.Attr(name); ok {
		for _, candidate := range ParseSrcset(v) {
			c.add(candidate, source)
		}
	}
}

func (c *collector) images(doc *goquery.Document) {
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		c.attr(s, "src", model.SourceImg)
		c.attr(s, "data-src", model.SourceImg)
		c.srcset(s, "srcset", model.SourceImg)
		c.srcset(s, "data-srcset", model.SourceImg)
	})
	doc.Find("picture source").Each(func(_ int, s *goquery.Selection) {
		c.srcset(s, "srcset", model.SourceImg)
	})
}

func (c *collector) scriptsAndLinks(doc *goquery.Document) {
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		c.attr(s, "src", model.SourceScript)
	})
	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		if isAssetLink(s.AttrOr("rel", "")) {
			c.attr(s, "href", model.SourceLink)
		}
	})
}

func (c *collector) media(doc *goquery.Document) {
	doc.Find("video, audio").Each(func(_ int, s *goquery.Selection) {
		c.attr(s, "src", model.SourceMedia)
		c.attr(s, "poster", model.SourceMedia)
		s.Find("source").Each(func(_ int, src *goquery.Selection) {
			c.attr(src, "src", model.SourceMedia)
		})
	})
}

func (c *collector) styles(doc *goquery.Document) {
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		for _, raw := range CSSURLs(s.AttrOr("style", "")) {
			c.add(raw, model.SourceStyle)
		}
	})
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		css := s.Text()
		for _, raw := range CSSURLs(css) {
			c.add(raw, model.SourceStyle)
		}
		for _, m := range cssImportPattern.FindAllStringSubmatch(css, -1) {
			c.add(firstGroup(m), model.SourceStyle)
		}
	})
}

// isAssetLink reports whether a rel attribute names an asset relation.
// A stylesheet marked alternate is still an asset.
func isAssetLink(rel string) bool {
	for _, token := range strings.Fields(strings.ToLower(rel)) {
		if assetRels[token] {
			return true
		}
	}
	return false
}

// CSSURLs returns the values of every url(...) in css, in order.
func CSSURLs(css string) []string {
	matches := cssURLPattern.FindAllStringSubmatch(css, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if v := strings.TrimSpace(firstGroup(m)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

// ParseSrcset returns the URLs of a srcset attribute, dropping width and
// density descriptors. URLs may contain commas; a candidate ends at
// whitespace or at a trailing comma.
func ParseSrcset(srcset string) []string {
	var out []string
	s := srcset
	for {
		s = strings.TrimLeft(s, " \t\n\r\f,")
		if s == "" {
			return out
		}

		end := strings.IndexAny(s, " \t\n\r\f")
		if end < 0 {
			end = len(s)
		}
		candidate := s[:end]
		s = s[end:]

		if strings.HasSuffix(candidate, ",") {
			candidate = strings.TrimRight(candidate, ",")
		} else if i := strings.IndexByte(s, ','); i >= 0 {
			s = s[i+1:]
		} else {
			s = ""
		}

		if candidate != "" {
			out = append(out, candidate)
		}
	}
}
