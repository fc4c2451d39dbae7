// Package scraper mirrors the pages of one website.
//
// A Scraper owns the run state: the registry of assets already claimed and
// the mapping from URLs to local paths. Pages are scraped one at a time,
// and assets shared between pages are downloaded once.
//
//	s, err := scraper.New("https://site.test", b, f, scraper.WithOutputDir("page"))
//	res, err := s.ScrapePage(ctx, "en_us/ids")
//	total, err := s.Finish(ctx)
package scraper
