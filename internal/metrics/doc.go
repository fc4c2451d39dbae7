// Package metrics exposes Prometheus counters for asset fetches, scraped
// pages and offline server requests.
//
// Each Metrics value owns its registry, so several runs in one process (or
// parallel tests) never share collectors.
//
//	m := metrics.New()
//	fetcher := m.InstrumentFetcher(fetch.New())
//	go metrics.Serve(ctx, "127.0.0.1:9090", m.Handler(), logger)
package metrics
