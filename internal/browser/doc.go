// Package browser produces RenderedPage snapshots for the scraper.
//
// Two renderers implement Browser:
//
//   - Chrome drives headless Chrome (local or remote over DevTools) with
//     chromedp. It waits out the hydration period and reports the resource
//     URLs the page actually requested through the Performance API.
//   - Static fetches the page over plain HTTP without running JavaScript.
//     It reports no performance entries, so only DOM references are found.
package browser
