package model

import (
	"net/url"
	"strings"
)

// RenderedPage is the snapshot a browser produces after loading a page and
// waiting for hydration. It is the only input the scraper needs from the
// browser layer.
type RenderedPage struct {
	// HTML is the serialized DOM after hydration.
	HTML string `json:"-"`

	// PerformanceEntries are the resource URLs the browser requested, in the
	// order reported by the Performance API. Empty for renderers that do not
	// execute JavaScript.
	PerformanceEntries []string `json:"performance_entries,omitempty"`

	// BaseURL is the URL relative references resolve against. This is the
	// document base URI, which accounts for redirects and <base href>.
	BaseURL *url.URL `json:"-"`
}

// IsHTML reports whether the snapshot looks like an HTML document.
func (p *RenderedPage) IsHTML() bool {
	head := strings.ToLower(strings.TrimSpace(p.HTML))
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html") ||
		strings.Contains(head, "<head") || strings.Contains(head, "<body")
}

// PageState is the position of a page in the scrape state machine.
type PageState string

// Page states in the order a successful scrape passes through them.
const (
	PageStatePending   PageState = "pending"
	PageStateNavigated PageState = "navigated"
	PageStateExtracted PageState = "extracted"
	PageStateFiltered  PageState = "filtered"
	PageStateFetching  PageState = "fetching"
	PageStateSaved     PageState = "saved"

	// PageStateFailed is terminal: navigation or the HTML write failed.
	PageStateFailed PageState = "failed"
)

// Fetch is a unit of work for the fetch pool: one new asset and the local
// path it maps to.
type Fetch struct {
	// Ref is the first reference that introduced the asset.
	Ref AssetReference

	// Dest is the mapped local path. It may carry a pending extension marker
	// that the fetcher completes from the response media type.
	Dest string
}
