// Package pipeline runs one page through the scrape state machine.
//
// A page moves navigate → extract → filter → fetch → save. Each stage is a
// Step that reads and extends a model.PageRecord. A failing step stops the
// pipeline and marks the page failed; per-asset failures never do, they
// are recorded as outcomes instead.
//
// The page timeout bounds navigation, plus the hydration wait. FetchPool
// downloads the assets the filter step dispatched, bounded by an errgroup
// limit and, separately, by the page timeout.
package pipeline
