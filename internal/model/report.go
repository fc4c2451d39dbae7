package model

import (
	"sort"
	"sync"
	"time"
)

// PageRecord is the working state of one page while it moves through the
// scrape pipeline. Each step reads what earlier steps produced and adds its own.
//
// Outcomes may be appended concurrently by fetch workers, so access to it
// goes through AddOutcome and Outcomes.
type PageRecord struct {
	// Path is the page path as given by the caller (e.g. "en_us/ids").
	Path string `json:"path"`

	// URL is the absolute page URL.
	URL NormalizedURL `json:"url"`

	// State is the current state machine position.
	State PageState `json:"state"`

	// Rendered is the browser snapshot. Set by the navigate step.
	Rendered *RenderedPage `json:"-"`

	// References are all asset references extracted from the page,
	// including duplicates. Set by the extract step.
	References []AssetReference `json:"-"`

	// Pending are the new assets to fetch. Set by the filter step.
	Pending []Fetch `json:"-"`

	// LocalPath is where the page HTML was written. Set by the save step.
	LocalPath string `json:"local_path,omitempty"`

	// Skipped counts references dropped because they could not be mapped
	// to a safe local path.
	Skipped int `json:"skipped"`

	// Err is the page-fatal error, if any.
	Err error `json:"-"`

	// StartedAt is when the scrape of this page began.
	StartedAt time.Time `json:"started_at"`

	// PerformedSteps lists the names of completed pipeline steps.
	PerformedSteps []string `json:"performed_steps"`

	mu       sync.Mutex
	outcomes []AssetOutcome
}

// NewPageRecord creates a record for the given page.
func NewPageRecord(path string, pageURL NormalizedURL) *PageRecord {
	return &PageRecord{
		Path:           path,
		URL:            pageURL,
		State:          PageStatePending,
		StartedAt:      time.Now(),
		PerformedSteps: make([]string, 0),
		outcomes:       make([]AssetOutcome, 0),
	}
}

// AddOutcome records an asset outcome for this page. Safe for concurrent use.
func (r *PageRecord) AddOutcome(o AssetOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.Err != nil && o.Error == "" {
		o.Error = o.Err.Error()
	}
	if o.CompletedAt.IsZero() {
		o.CompletedAt = time.Now()
	}
	r.outcomes = append(r.outcomes, o)
}

// Outcomes returns a copy of the recorded outcomes sorted by URL.
func (r *PageRecord) Outcomes() []AssetOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AssetOutcome, len(r.outcomes))
	copy(out, r.outcomes)
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Result summarizes the record as a ScrapeResult.
func (r *PageRecord) Result() *ScrapeResult {
	res := &ScrapeResult{
		Path:      r.Path,
		URL:       r.URL,
		LocalPath: r.LocalPath,
		State:     r.State,
		Skipped:   r.Skipped,
		Elapsed:   time.Since(r.StartedAt),
		Failures:  make([]AssetOutcome, 0),
	}

	unique := make(map[NormalizedURL]bool, len(r.References))
	for _, ref := range r.References {
		unique[ref.URL] = true
	}
	res.Found = len(unique)

	for _, o := range r.Outcomes() {
		switch o.Status {
		case AssetFetched:
			res.Downloaded++
		case AssetAlreadyPresent:
			res.AlreadyPresent++
		case AssetFailed:
			res.Failed++
			res.Failures = append(res.Failures, o)
		case AssetPending:
		}
	}
	res.New = len(r.Pending) + res.AlreadyPresent
	if r.Err != nil {
		res.Error = r.Err.Error()
	}
	return res
}

// ScrapeResult holds the counts for one scraped page.
type ScrapeResult struct {
	// Path is the page path as given by the caller.
	Path string `json:"path"`

	// URL is the absolute page URL.
	URL NormalizedURL `json:"url"`

	// LocalPath is where the page HTML was written.
	LocalPath string `json:"local_path,omitempty"`

	// State is the final page state; PageStateSaved on success.
	State PageState `json:"state"`

	// Found is the number of distinct asset URLs discovered on the page.
	Found int `json:"found"`

	// New is the number of assets first claimed by this page, whether they
	// were fetched or found on disk.
	New int `json:"new"`

	// Downloaded is the number of assets this page fetched successfully.
	Downloaded int `json:"downloaded"`

	// AlreadyPresent is the number of new assets whose file was already on disk.
	AlreadyPresent int `json:"already_present"`

	// Failed is the number of assets whose fetch failed.
	Failed int `json:"failed"`

	// Skipped is the number of references that could not be mapped safely.
	Skipped int `json:"skipped"`

	// Failures lists the failed assets.
	Failures []AssetOutcome `json:"failures,omitempty"`

	// Error is the page-fatal error message, if the page failed.
	Error string `json:"error,omitempty"`

	// Elapsed is the wall-clock time spent on the page.
	Elapsed time.Duration `json:"elapsed"`
}

// Saved reports whether the page reached the saved state.
func (r *ScrapeResult) Saved() bool {
	return r.State == PageStateSaved
}

// RunSummary aggregates a whole scrape run.
type RunSummary struct {
	// RunID identifies the run in the manifest database, if one is used.
	RunID string `json:"run_id,omitempty"`

	// Website is the site base URL.
	Website string `json:"website"`

	// OutputDir is the mirror root.
	OutputDir string `json:"output_dir"`

	// Pages holds one result per requested page, in request order.
	Pages []*ScrapeResult `json:"pages"`

	// TotalAssets is the number of unique assets downloaded during the run.
	TotalAssets int `json:"total_assets"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// SavedPages returns the number of pages that were saved.
func (s *RunSummary) SavedPages() int {
	n := 0
	for _, p := range s.Pages {
		if p.Saved() {
			n++
		}
	}
	return n
}

// FailedPages returns the number of pages that failed.
func (s *RunSummary) FailedPages() int {
	return len(s.Pages) - s.SavedPages()
}

// FailedAssets returns the total number of failed assets across pages.
func (s *RunSummary) FailedAssets() int {
	n := 0
	for _, p := range s.Pages {
		n += p.Failed
	}
	return n
}
