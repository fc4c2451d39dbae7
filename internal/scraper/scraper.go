package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/pagemirror/internal/browser"
	"github.com/nao1215/pagemirror/internal/crawler"
	"github.com/nao1215/pagemirror/internal/mirror"
	"github.com/nao1215/pagemirror/internal/model"
	"github.com/nao1215/pagemirror/internal/pipeline"
)

// ErrHTMLWrite is returned when a page's rewritten HTML cannot be written.
var ErrHTMLWrite = pipeline.ErrHTMLWrite

// Defaults used when no option overrides them.
const (
	DefaultOutputDir     = "page"
	DefaultHydrationWait = 2 * time.Second
	DefaultPageTimeout   = 2 * time.Minute
	DefaultConcurrency   = 8
)

// Recorder receives the results of a run, e.g. to persist a manifest.
type Recorder interface {
	// RecordPage stores the result of one page.
	RecordPage(ctx context.Context, page *model.ScrapeResult) error

	// RecordAssets stores asset outcomes produced by one page.
	RecordAssets(ctx context.Context, page string, outcomes []model.AssetOutcome) error

	// Finish closes the run with the total number of downloaded assets.
	Finish(ctx context.Context, totalAssets int) error
}

// Scraper mirrors pages of a single website.
type Scraper struct {
	website       *url.URL
	browser       browser.Browser
	fetcher       pipeline.Fetcher
	registry      *mirror.Registry
	mapper        *mirror.Mapper
	pipeline      *pipeline.Pipeline
	outputDir     string
	hydrationWait time.Duration
	pageTimeout   time.Duration
	concurrency   int
	rewriteAll    bool
	filter        *crawler.Filter
	recorder      Recorder
	logger        *slog.Logger

	results   []*model.ScrapeResult
	startedAt time.Time
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithOutputDir sets the mirror root directory.
func WithOutputDir(dir string) Option {
	return func(s *Scraper) {
		s.outputDir = dir
	}
}

// WithHydrationWait sets how long the browser waits after load.
func WithHydrationWait(d time.Duration) Option {
	return func(s *Scraper) {
		s.hydrationWait = d
	}
}

// WithPageTimeout bounds loading one page and, separately, fetching its
// assets.
func WithPageTimeout(d time.Duration) Option {
	return func(s *Scraper) {
		s.pageTimeout = d
	}
}

// WithConcurrency sets the maximum number of concurrent asset fetches.
func WithConcurrency(n int) Option {
	return func(s *Scraper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRewriteCrossOrigin rewrites references to other hosts as well as
// same-origin ones.
func WithRewriteCrossOrigin(enabled bool) Option {
	return func(s *Scraper) {
		s.rewriteAll = enabled
	}
}

// WithFilter applies ignore/follow patterns to asset URLs.
func WithFilter(f *crawler.Filter) Option {
	return func(s *Scraper) {
		s.filter = f
	}
}

// WithRecorder sets a Recorder that receives every page and asset outcome.
func WithRecorder(r Recorder) Option {
	return func(s *Scraper) {
		s.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scraper) {
		s.logger = logger
	}
}

// New creates a Scraper for website. The Scraper owns a fresh registry and
// mapper; the browser and fetcher are shared collaborators.
func New(website string, b browser.Browser, f pipeline.Fetcher, opts ...Option) (*Scraper, error) {
	base, err := crawler.ParseBase(website)
	if err != nil {
		return nil, fmt.Errorf("invalid website %q: %w", website, err)
	}

	s := &Scraper{
		website:       base,
		browser:       b,
		fetcher:       f,
		registry:      mirror.NewRegistry(),
		outputDir:     DefaultOutputDir,
		hydrationWait: DefaultHydrationWait,
		pageTimeout:   DefaultPageTimeout,
		concurrency:   DefaultConcurrency,
		logger:        slog.Default(),
		results:       make([]*model.ScrapeResult, 0),
		startedAt:     time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mapper = mirror.NewMapper(s.outputDir)
	s.pipeline = s.newPipeline()
	s.logger.Debug("scraper ready",
		"website", s.website,
		"output", s.mapper.Root(),
		"steps", s.pipeline.StepNames(),
	)
	return s, nil
}

func (s *Scraper) newPipeline() *pipeline.Pipeline {
	extractor := crawler.NewExtractor(
		crawler.WithLogger(s.logger),
		crawler.WithFilter(s.filter),
	)
	pool := pipeline.NewFetchPool(s.fetcher, s.registry,
		pipeline.WithConcurrency(s.concurrency),
		pipeline.WithPoolLogger(s.logger),
	)

	p := pipeline.New(pipeline.WithLogger(s.logger))
	p.AddSteps(
		pipeline.NewNavigateStep(s.browser, s.hydrationWait, s.pageTimeout),
		pipeline.NewExtractStep(extractor),
		pipeline.NewFilterStep(s.registry, s.mapper, s.logger),
		pipeline.NewFetchStep(pool, s.pageTimeout),
		pipeline.NewSaveStep(s.registry, s.mapper, s.rewriteAll, s.logger),
	)
	return p
}

// PageURL returns the absolute URL of a page path on the website.
// Absolute http(s) URLs are returned normalized.
func (s *Scraper) PageURL(path string) (model.NormalizedURL, error) {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return crawler.Normalize(path, s.website)
	}
	joined := strings.TrimSuffix(s.website.String(), "/") + "/" + strings.TrimPrefix(path, "/")
	return crawler.Normalize(joined, s.website)
}

// ScrapePage mirrors one page: it renders the page, downloads every asset
// not already claimed by the run, rewrites same-origin references and
// saves the HTML.
//
// The result is returned even when the page failed; the error is non-nil
// only for page-fatal failures (navigation or HTML write). Asset failures
// are reported in the result.
func (s *Scraper) ScrapePage(ctx context.Context, path string) (*model.ScrapeResult, error) {
	pageURL, err := s.PageURL(path)
	if err != nil {
		res := &model.ScrapeResult{Path: path, State: model.PageStateFailed, Error: err.Error()}
		s.results = append(s.results, res)
		return res, fmt.Errorf("%w: %s: %w", browser.ErrNavigation, path, err)
	}

	s.logger.Info("scraping page", "page", pageURL)

	record := model.NewPageRecord(path, pageURL)
	execErr := s.pipeline.Execute(ctx, record)
	res := record.Result()
	s.results = append(s.results, res)

	s.record(ctx, record, res)

	if execErr != nil {
		s.logger.Warn("page failed", "page", pageURL, "error", execErr)
		return res, execErr
	}

	s.logger.Info("page saved",
		"page", pageURL,
		"path", res.LocalPath,
		"found", res.Found,
		"new", res.New,
		"downloaded", res.Downloaded,
		"already_present", res.AlreadyPresent,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

func (s *Scraper) record(ctx context.Context, record *model.PageRecord, res *model.ScrapeResult) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordPage(ctx, res); err != nil {
		s.logger.Warn("failed to record page", "page", res.URL, "error", err)
	}
	if outcomes := record.Outcomes(); len(outcomes) > 0 {
		if err := s.recorder.RecordAssets(ctx, res.Path, outcomes); err != nil {
			s.logger.Warn("failed to record assets", "page", res.URL, "error", err)
		}
	}
}

// Finish ends the run and returns the number of unique assets downloaded
// across all pages.
func (s *Scraper) Finish(ctx context.Context) (int, error) {
	total := s.registry.Downloaded()
	s.logger.Info("scrape finished",
		"pages", len(s.results),
		"assets", total,
		"claimed", s.registry.Len(),
		"elapsed", time.Since(s.startedAt),
	)

	if s.recorder != nil {
		if err := s.recorder.Finish(ctx, total); err != nil {
			return total, fmt.Errorf("failed to finish run record: %w", err)
		}
	}
	return total, nil
}

// Summary returns the results of the run so far.
func (s *Scraper) Summary() *model.RunSummary {
	pages := make([]*model.ScrapeResult, len(s.results))
	copy(pages, s.results)
	return &model.RunSummary{
		Website:     s.website.String(),
		OutputDir:   s.outputDir,
		Pages:       pages,
		TotalAssets: s.registry.Downloaded(),
		StartedAt:   s.startedAt,
		FinishedAt:  time.Now(),
	}
}

// IsUnavailable reports whether err means the browser could not be reached,
// which is fatal for the whole run.
func IsUnavailable(err error) bool {
	return errors.Is(err, browser.ErrUnavailable)
}
