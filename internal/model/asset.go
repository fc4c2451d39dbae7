package model

import (
	"net/url"
	"time"
)

// NormalizedURL is the canonical absolute form of an http(s) resource URL.
// It is the identity key for deduplication and for local path mapping.
// Values are produced by crawler.Normalize; never build one by hand.
type NormalizedURL string

// String returns the URL as a plain string.
func (u NormalizedURL) String() string {
	return string(u)
}

// Parse parses the normalized URL into a *url.URL.
func (u NormalizedURL) Parse() (*url.URL, error) {
	return url.Parse(string(u))
}

// Host returns the lowercase host (with port, if any) of the URL.
// Returns an empty string if the URL cannot be parsed.
func (u NormalizedURL) Host() string {
	parsed, err := u.Parse()
	if err != nil {
		return ""
	}
	return parsed.Host
}

// Source identifies where an asset reference was discovered.
type Source string

// Discovery sources. The tag is informational; it never changes how an
// asset is fetched or stored.
const (
	// SourcePerformance is a request the browser actually issued,
	// taken from the Performance API resource entries.
	SourcePerformance Source = "performance-entry"

	// SourceImg is an <img> src, data-src or srcset candidate,
	// or a <picture><source srcset> candidate.
	SourceImg Source = "img"

	// SourceScript is a <script src>.
	SourceScript Source = "script"

	// SourceLink is a <link href> for stylesheets, preloads and icons.
	SourceLink Source = "link"

	// SourceMedia is a <video>/<audio> src or poster, or a nested <source src>.
	SourceMedia Source = "media"

	// SourceStyle is a url(...) or @import inside a style attribute or <style> block.
	SourceStyle Source = "style"
)

// AssetReference is a candidate asset URL discovered on a page.
// Several references may collapse to the same URL; only the first one
// is dispatched for download.
type AssetReference struct {
	// Raw is the reference exactly as it appeared in the page
	// (attribute value, srcset candidate, url(...) argument, or performance entry).
	// The rewriter substitutes occurrences of Raw in the saved HTML.
	Raw string `json:"raw"`

	// URL is the normalized form of Raw resolved against the page base URL.
	URL NormalizedURL `json:"url"`

	// Source tags where the reference was found.
	Source Source `json:"source"`
}

// AssetStatus is the download outcome of an asset within a run.
type AssetStatus string

const (
	// AssetPending means the asset was acquired but the fetch has not finished.
	AssetPending AssetStatus = "pending"

	// AssetFetched means the asset was downloaded and written during this run.
	AssetFetched AssetStatus = "fetched"

	// AssetAlreadyPresent means the mapped file already existed on disk,
	// typically from an earlier run, so no request was made.
	AssetAlreadyPresent AssetStatus = "already-present"

	// AssetFailed means the fetch or write failed. Failure is terminal
	// for the asset within the run.
	AssetFailed AssetStatus = "failed"
)

// AssetOutcome records what happened to one asset.
type AssetOutcome struct {
	// URL is the asset identity.
	URL NormalizedURL `json:"url"`

	// Source is the discovery source of the first reference to the asset.
	Source Source `json:"source"`

	// Status is the download outcome.
	Status AssetStatus `json:"status"`

	// LocalPath is where the asset lives on disk. Empty when the asset failed
	// before a path was known.
	LocalPath string `json:"local_path,omitempty"`

	// ContentType is the media type reported by the server, without parameters.
	ContentType string `json:"content_type,omitempty"`

	// Bytes is the number of bytes written.
	Bytes int64 `json:"bytes,omitempty"`

	// StatusCode is the HTTP status of the final response, if any.
	StatusCode int `json:"status_code,omitempty"`

	// Err is the failure cause. Excluded from JSON; see Error.
	Err error `json:"-"`

	// Error is the string form of Err, kept for reports and storage.
	Error string `json:"error,omitempty"`

	// CompletedAt is when the outcome was recorded.
	CompletedAt time.Time `json:"completed_at"`
}

// Failed reports whether the outcome is a failure.
func (o AssetOutcome) Failed() bool {
	return o.Status == AssetFailed
}

// FetchResult is what the Fetcher returns for a successful download.
type FetchResult struct {
	// URL is the requested URL.
	URL NormalizedURL

	// FinalURL is the URL of the last response after redirects.
	FinalURL string

	// LocalPath is the path the body was written to, including any
	// extension inferred from ContentType.
	LocalPath string

	// ContentType is the response media type without parameters.
	ContentType string

	// StatusCode is the HTTP status of the final response.
	StatusCode int

	// BytesWritten is the size of the written body.
	BytesWritten int64
}
