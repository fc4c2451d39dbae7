package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nao1215/pagemirror/internal/browser"
	"github.com/nao1215/pagemirror/internal/crawler"
	"github.com/nao1215/pagemirror/internal/mirror"
	"github.com/nao1215/pagemirror/internal/model"
)

var (
	// ErrHTMLWrite is returned when the rewritten page cannot be persisted.
	ErrHTMLWrite = errors.New("failed to write page HTML")

	// ErrNotHTML is returned when a page URL serves something other than an
	// HTML document. It is always wrapped with browser.ErrNavigation.
	ErrNotHTML = errors.New("page is not an HTML document")
)

// NavigateStep renders the page in the browser.
type NavigateStep struct {
	browser browser.Browser
	wait    time.Duration
	timeout time.Duration
}

// NewNavigateStep creates a NavigateStep that waits for wait after load.
// A positive timeout bounds loading the page; the hydration wait is added
// on top of it.
func NewNavigateStep(b browser.Browser, wait, timeout time.Duration) *NavigateStep {
	return &NavigateStep{browser: b, wait: wait, timeout: timeout}
}

// Name returns the step name.
func (s *NavigateStep) Name() string {
	return "navigate"
}

// Do executes the navigate step. Any browser error is a navigation error,
// and so is a snapshot that is not HTML.
func (s *NavigateStep) Do(ctx context.Context, record *model.PageRecord) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout+s.wait)
		defer cancel()
	}

	page, err := s.browser.Render(ctx, string(record.URL), s.wait)
	if err != nil {
		if errors.Is(err, browser.ErrNavigation) || errors.Is(err, browser.ErrUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", browser.ErrNavigation, record.URL, err)
	}
	if !page.IsHTML() {
		return fmt.Errorf("%w: %s: %w", browser.ErrNavigation, record.URL, ErrNotHTML)
	}
	if page.BaseURL == nil {
		base, err := record.URL.Parse()
		if err != nil {
			return fmt.Errorf("%w: %s: %w", browser.ErrNavigation, record.URL, err)
		}
		page.BaseURL = base
	}

	record.Rendered = page
	record.State = model.PageStateNavigated
	return nil
}

// ExtractStep collects asset references from the rendered page.
type ExtractStep struct {
	extractor *crawler.Extractor
}

// NewExtractStep creates an ExtractStep.
func NewExtractStep(extractor *crawler.Extractor) *ExtractStep {
	return &ExtractStep{extractor: extractor}
}

// Name returns the step name.
func (s *ExtractStep) Name() string {
	return "extract"
}

// Do executes the extract step.
func (s *ExtractStep) Do(_ context.Context, record *model.PageRecord) error {
	record.References = s.extractor.Extract(record.Rendered)
	record.State = model.PageStateExtracted
	return nil
}

// FilterStep splits the page's references into assets that must be fetched
// and assets already claimed by the run.
type FilterStep struct {
	registry *mirror.Registry
	mapper   *mirror.Mapper
	logger   *slog.Logger
}

// NewFilterStep creates a FilterStep.
func NewFilterStep(registry *mirror.Registry, mapper *mirror.Mapper, logger *slog.Logger) *FilterStep {
	return &FilterStep{registry: registry, mapper: mapper, logger: logger}
}

// Name returns the step name.
func (s *FilterStep) Name() string {
	return "filter"
}

// Do executes the filter step. References that cannot be mapped safely are
// skipped. A new asset whose file is already on disk is recorded as
// already present without a request.
func (s *FilterStep) Do(_ context.Context, record *model.PageRecord) error {
	for _, ref := range crawler.Unique(record.References) {
		dest, err := s.mapper.Map(ref.URL)
		if err != nil {
			record.Skipped++
			s.logger.Warn("skipping unmappable asset", "url", ref.URL, "error", err)
			continue
		}

		if s.registry.Acquire(ref.URL) != mirror.IsNew {
			continue
		}

		if existing, ok := mirror.Existing(dest); ok {
			outcome := model.AssetOutcome{
				URL:         ref.URL,
				Source:      ref.Source,
				Status:      model.AssetAlreadyPresent,
				LocalPath:   existing,
				CompletedAt: time.Now(),
			}
			s.registry.Complete(outcome)
			record.AddOutcome(outcome)
			continue
		}

		record.Pending = append(record.Pending, model.Fetch{Ref: ref, Dest: dest})
	}

	record.State = model.PageStateFiltered
	return nil
}

// FetchStep downloads the dispatched assets through a FetchPool.
type FetchStep struct {
	pool    *FetchPool
	timeout time.Duration
}

// NewFetchStep creates a FetchStep. A positive timeout bounds the time
// spent on the page's fetches.
func NewFetchStep(pool *FetchPool, timeout time.Duration) *FetchStep {
	return &FetchStep{pool: pool, timeout: timeout}
}

// Name returns the step name.
func (s *FetchStep) Name() string {
	return "fetch"
}

// Do executes the fetch step. It waits for every dispatched fetch and never
// fails; unfinished fetches at the timeout are recorded as failed.
func (s *FetchStep) Do(ctx context.Context, record *model.PageRecord) error {
	record.State = model.PageStateFetching
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	s.pool.Run(ctx, record)
	return nil
}

// SaveStep rewrites the page to reference local copies and writes it.
type SaveStep struct {
	registry    *mirror.Registry
	mapper      *mirror.Mapper
	crossOrigin bool
	logger      *slog.Logger
}

// NewSaveStep creates a SaveStep. With crossOrigin set, references to
// other hosts are rewritten as well.
func NewSaveStep(registry *mirror.Registry, mapper *mirror.Mapper, crossOrigin bool, logger *slog.Logger) *SaveStep {
	return &SaveStep{registry: registry, mapper: mapper, crossOrigin: crossOrigin, logger: logger}
}

// Name returns the step name.
func (s *SaveStep) Name() string {
	return "save"
}

// Do executes the save step.
func (s *SaveStep) Do(_ context.Context, record *model.PageRecord) error {
	pagePath, err := s.mapper.MapPage(record.URL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHTMLWrite, err)
	}

	pageHost := record.URL.Host()
	replacements := make([]crawler.Replacement, 0, len(record.References))
	for _, ref := range record.References {
		if !s.crossOrigin && ref.URL.Host() != pageHost {
			continue
		}
		outcome, ok := s.registry.Lookup(ref.URL)
		if !ok || outcome.LocalPath == "" || outcome.Failed() {
			continue
		}
		local, err := mirror.RelativeRef(pagePath, outcome.LocalPath)
		if err != nil {
			continue
		}
		replacements = append(replacements, crawler.Replacement{Raw: ref.Raw, Local: local})
	}

	html, rewritten := crawler.Rewrite(record.Rendered.HTML, replacements)
	if _, err := mirror.WriteAtomic(pagePath, strings.NewReader(html)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrHTMLWrite, pagePath, err)
	}

	s.logger.Debug("page saved",
		"page", record.URL,
		"path", pagePath,
		"rewritten", rewritten,
	)

	record.LocalPath = pagePath
	record.State = model.PageStateSaved
	return nil
}
