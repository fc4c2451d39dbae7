package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/pagemirror/internal/fetch"
	"github.com/nao1215/pagemirror/internal/model"
)

// Fetch results used as the "result" label.
const (
	ResultOK           = "ok"
	ResultHTTPError    = "http_error"
	ResultNetworkError = "network_error"
	ResultOther        = "other"
)

// Fetcher is the download interface the scraper consumes.
type Fetcher interface {
	Fetch(ctx context.Context, u model.NormalizedURL, dest string) (*model.FetchResult, error)
}

// Metrics holds the collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	fetches       *prometheus.CounterVec
	fetchBytes    prometheus.Counter
	fetchDuration prometheus.Histogram
	pages         *prometheus.CounterVec
	assets        *prometheus.CounterVec
	requests      *prometheus.CounterVec
	requestTime   *prometheus.HistogramVec
}

// New creates Metrics with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagemirror_fetches_total",
				Help: "Asset downloads, labeled by result.",
			},
			[]string{"result"},
		),
		fetchBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pagemirror_fetch_bytes_total",
				Help: "Bytes written by successful asset downloads.",
			},
		),
		fetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pagemirror_fetch_duration_seconds",
				Help:    "Duration of asset downloads in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		pages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagemirror_pages_total",
				Help: "Scraped pages, labeled by final state.",
			},
			[]string{"state"},
		),
		assets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagemirror_page_assets_total",
				Help: "Asset outcomes of scraped pages, labeled by status.",
			},
			[]string{"status"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagemirror_http_requests_total",
				Help: "Requests served from the mirror, labeled by status code and method.",
			},
			[]string{"code", "method"},
		),
		requestTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagemirror_http_request_duration_seconds",
				Help:    "Duration of requests served from the mirror in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"code"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.fetches,
		m.fetchBytes,
		m.fetchDuration,
		m.pages,
		m.assets,
		m.requests,
		m.requestTime,
	)
	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InstrumentFetcher wraps f so every download is counted and timed.
func (m *Metrics) InstrumentFetcher(f Fetcher) Fetcher {
	return &instrumentedFetcher{next: f, m: m}
}

// InstrumentHandler wraps next so every request is counted and timed.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(m.requestTime,
		promhttp.InstrumentHandlerCounter(m.requests, next))
}

// ObservePage records the final state and asset counts of one page.
func (m *Metrics) ObservePage(res *model.ScrapeResult) {
	m.pages.WithLabelValues(string(res.State)).Inc()
	m.assets.WithLabelValues(string(model.AssetFetched)).Add(float64(res.Downloaded))
	m.assets.WithLabelValues(string(model.AssetAlreadyPresent)).Add(float64(res.AlreadyPresent))
	m.assets.WithLabelValues(string(model.AssetFailed)).Add(float64(res.Failed))
}

type instrumentedFetcher struct {
	next Fetcher
	m    *Metrics
}

func (f *instrumentedFetcher) Fetch(ctx context.Context, u model.NormalizedURL, dest string) (*model.FetchResult, error) {
	start := time.Now()
	res, err := f.next.Fetch(ctx, u, dest)
	f.m.fetchDuration.Observe(time.Since(start).Seconds())
	f.m.fetches.WithLabelValues(Result(err)).Inc()
	if err == nil && res != nil {
		f.m.fetchBytes.Add(float64(res.BytesWritten))
	}
	return res, err
}

// Result classifies a fetch error for the "result" label.
func Result(err error) string {
	if err == nil {
		return ResultOK
	}
	var httpErr *fetch.FetchError
	if errors.As(err, &httpErr) {
		return ResultHTTPError
	}
	var netErr *fetch.NetworkError
	if errors.As(err, &netErr) {
		return ResultNetworkError
	}
	return ResultOther
}

// Serve exposes handler at /metrics on addr until ctx is canceled.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info("exposing Prometheus metrics", "addr", "http://"+ln.Addr().String()+"/metrics")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down metrics server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
