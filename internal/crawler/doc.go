// Package crawler turns a rendered page into the set of assets that must be
// mirrored, and rewrites the page so those assets resolve locally.
//
// # Components
//
//   - Normalize: canonicalizes a raw reference into a model.NormalizedURL
//   - Extractor: collects asset references from performance entries and the DOM
//   - Filter: applies ignore/follow glob patterns to asset URL paths
//   - Rewrite: substitutes extracted references with local relative paths
//
// # Usage
//
//	ex := crawler.NewExtractor(crawler.WithLogger(logger))
//	refs := ex.Extract(page)
//	for _, ref := range crawler.Unique(refs) {
//		// dispatch ref.URL
//	}
//
// Every reference is normalized before it leaves this package, so two raw
// strings that name the same resource produce the same NormalizedURL.
package crawler
