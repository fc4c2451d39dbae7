// Package model defines the data structures shared by the mirroring pipeline.
//
// This package contains the following main types:
//   - NormalizedURL: canonical identity of a resource
//   - AssetReference: a discovered URL tagged with where it was found
//   - RenderedPage: the snapshot the browser layer hands to the scraper
//   - AssetOutcome: the final state of one asset within a run
//   - PageRecord: per-page working state threaded through pipeline steps
//   - ScrapeResult and RunSummary: per-page and per-run counts
//
// Models live in their own package so that crawler, mirror, fetch,
// pipeline and report can share them without import cycles.
package model
