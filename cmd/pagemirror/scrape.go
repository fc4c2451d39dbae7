package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/pagemirror/internal/browser"
	"github.com/nao1215/pagemirror/internal/config"
	"github.com/nao1215/pagemirror/internal/crawler"
	"github.com/nao1215/pagemirror/internal/database"
	"github.com/nao1215/pagemirror/internal/fetch"
	"github.com/nao1215/pagemirror/internal/metrics"
	"github.com/nao1215/pagemirror/internal/model"
	"github.com/nao1215/pagemirror/internal/report"
	"github.com/nao1215/pagemirror/internal/scraper"
)

// errAllPagesFailed makes the process exit non-zero when nothing was saved.
var errAllPagesFailed = errors.New("no page could be saved")

// NewScrapeCmd creates the scrape command.
func NewScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [page-path]...",
		Short: "Mirror pages and their assets to disk",
		Long: `Scrape renders each page, downloads every asset it loads and saves the page
with references rewritten to the local copies.

Pages are scraped in order. Assets shared between pages are downloaded once.
A page whose assets partly failed is still saved; the failures are reported.
The command exits non-zero only if every page failed or the browser could not
be reached.

Examples:
  # Mirror two pages with headless Chrome
  pagemirror scrape --website https://site.test en_us/ids en_us/about

  # Use a remote Chrome and a longer hydration wait
  pagemirror scrape -w https://site.test --browser-url ws://127.0.0.1:9222 --wait 5s en_us/ids

  # Fetch pages without running scripts
  pagemirror scrape -w https://site.test --browser static docs/index.html

  # Write a Markdown report
  pagemirror scrape -w https://site.test -f markdown --report-file report.md en_us/ids

Configuration file (.pagemirror) example:
  website: https://site.test
  sites:
    site.test:
      cookie: "session_id=abc123"
      pages:
        - en_us/ids
        - en_us/about`,
		Args: cobra.ArbitraryArgs,
		RunE: runScrapeCmd,
	}

	// Target flags
	cmd.Flags().StringP("website", "w", "",
		"Base URL the page paths are resolved against (e.g., https://site.test)")
	cmd.Flags().StringP("output", "o", config.DefaultOutputDir,
		"Directory the mirror is written to")

	// Rendering flags
	cmd.Flags().StringP("browser", "b", config.BrowserChrome,
		"Renderer: chrome (runs scripts) or static (plain HTTP)")
	cmd.Flags().String("browser-url", "",
		"DevTools URL of a running Chrome (default: start a local headless Chrome)")
	cmd.Flags().Duration("wait", config.DefaultHydrationWait,
		"Time to wait after load so client-side code can request its assets")

	// Fetch flags
	cmd.Flags().Duration("page-timeout", config.DefaultPageTimeout,
		"Time limit for loading one page, and separately for its asset downloads")
	cmd.Flags().DurationP("fetch-timeout", "t", config.DefaultFetchTimeout,
		"Time limit for a single HTTP request")
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Concurrent asset downloads per page")
	cmd.Flags().Int("max-redirects", config.DefaultMaxRedirects,
		"Redirects followed per request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum size of one asset in bytes (0 disables the limit)")
	cmd.Flags().Float64("rate", 0,
		"Maximum asset requests per second (0 disables the limit)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy address (e.g., 127.0.0.1:1080)")
	cmd.Flags().Bool("rewrite-all", false,
		"Also rewrite references to other hosts to their local copies")

	cmd.Flags().String("metrics-addr", "",
		"Expose Prometheus metrics at http://ADDR/metrics while scraping")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .pagemirror in current, XDG config or home directory)")

	// Report flags
	cmd.Flags().StringP("report-format", "f", string(report.FormatText),
		"Report format: text, markdown or json")
	cmd.Flags().String("report-file", "",
		"Write the report to this file (creates directories if needed)")

	// Manifest flags
	cmd.Flags().Bool("no-db", false,
		"Do not record the run in the manifest database")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the manifest database")

	return cmd
}

// runScrapeCmd executes the scrape command.
func runScrapeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, closer, err := setupLogger(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runScrape(ctx, cfg, cmd.OutOrStdout(), logger)
}

// buildConfig creates a Config from cobra command flags and the config file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.Website, err = flags.GetString("website"); err != nil {
		return nil, err
	}
	if cfg.OutputDir, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.Browser, err = flags.GetString("browser"); err != nil {
		return nil, err
	}
	if cfg.BrowserURL, err = flags.GetString("browser-url"); err != nil {
		return nil, err
	}
	if cfg.HydrationWait, err = flags.GetDuration("wait"); err != nil {
		return nil, err
	}
	if cfg.PageTimeout, err = flags.GetDuration("page-timeout"); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = flags.GetDuration("fetch-timeout"); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.MaxRedirects, err = flags.GetInt("max-redirects"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.RequestsPerSecond, err = flags.GetFloat64("rate"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.RewriteCrossOrigin, err = flags.GetBool("rewrite-all"); err != nil {
		return nil, err
	}
	if cfg.MetricsAddr, err = flags.GetString("metrics-addr"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.ReportFormat, err = flags.GetString("report-format"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report-file"); err != nil {
		return nil, err
	}
	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}

	// Per-page counts are always printed; a report is written only on request.
	if !flags.Changed("report-format") && cfg.ReportFile == "" {
		cfg.ReportFormat = ""
	}

	cfg.Pages = args

	// Load the config file. An explicit path must exist; otherwise a missing
	// file means no file settings.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}
	cfg.ApplyFile(flags.Changed("wait"))

	return cfg, nil
}

// runScrape mirrors cfg.Pages in order and writes the optional report.
func runScrape(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) error {
	var format report.Format
	if cfg.ReportFormat != "" {
		var err error
		if format, err = report.ParseFormat(cfg.ReportFormat); err != nil {
			return err
		}
	}

	site := cfg.Site()
	client, err := fetch.NewHTTPClient(
		fetch.WithTimeout(cfg.FetchTimeout),
		fetch.WithMaxRedirects(cfg.MaxRedirects),
		fetch.WithProxy(cfg.ProxyAddress),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithCredentials(cfg.Host(), site.Cookie, site.Headers),
		fetch.WithMaxConnsPerHost(cfg.Concurrency),
	)
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}

	var fetcher metrics.Fetcher = fetch.New(
		fetch.WithHTTPClient(client),
		fetch.WithRateLimit(cfg.RequestsPerSecond, cfg.Concurrency),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithLogger(logger),
	)

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
		fetcher = m.InstrumentFetcher(fetcher)

		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go serveMetrics(metricsCtx, cfg.MetricsAddr, m, logger)
	}

	b, err := newBrowser(ctx, cfg, site, client, logger)
	if err != nil {
		return fmt.Errorf("browser could not be started: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Debug("failed to close browser", "error", err)
		}
	}()

	opts := []scraper.Option{
		scraper.WithOutputDir(cfg.OutputDir),
		scraper.WithHydrationWait(cfg.HydrationWait),
		scraper.WithPageTimeout(cfg.PageTimeout),
		scraper.WithConcurrency(cfg.Concurrency),
		scraper.WithRewriteCrossOrigin(cfg.RewriteCrossOrigin),
		scraper.WithFilter(crawler.NewFilter(site.IgnorePatterns, site.FollowPatterns)),
		scraper.WithLogger(logger),
	}

	var run *database.Run
	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		run, err = db.BeginRun(ctx, cfg.Website, cfg.OutputDir)
		if err != nil {
			return err
		}
		opts = append(opts, scraper.WithRecorder(run))
		logger.Info("recording run", "run_id", run.ID(), "db", db.Path())
	}

	s, err := scraper.New(cfg.Website, b, fetcher, opts...)
	if err != nil {
		return err
	}

	logger.Info("starting scrape",
		"website", cfg.Website,
		"pages", len(cfg.Pages),
		"browser", cfg.Browser,
		"output", cfg.OutputDir,
	)

	saved := 0
	for i, p := range cfg.Pages {
		if ctx.Err() != nil {
			logger.Warn("scrape interrupted", "remaining", len(cfg.Pages)-i)
			break
		}

		res, err := s.ScrapePage(ctx, p)
		if m != nil && res != nil {
			m.ObservePage(res)
		}
		if err != nil {
			if scraper.IsUnavailable(err) {
				return fmt.Errorf("browser unavailable: %w", err)
			}
			fmt.Fprintf(out, "[%d/%d] %s: FAILED: %v\n", i+1, len(cfg.Pages), p, err)
			continue
		}
		saved++
		printPageResult(out, i+1, len(cfg.Pages), res)
	}

	// Recording the end of the run must survive an interrupt.
	finishCtx := context.WithoutCancel(ctx)
	total, err := s.Finish(finishCtx)
	if err != nil {
		logger.Error("failed to finish run", "error", err)
	}
	fmt.Fprintf(out, "\nDownloaded %d unique assets into %s (%d/%d pages saved)\n",
		total, cfg.OutputDir, saved, len(cfg.Pages))

	summary := s.Summary()
	if run != nil {
		summary.RunID = run.ID()
	}
	if format != "" {
		if err := writeReport(cfg, format, out, summary); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	if saved == 0 && len(cfg.Pages) > 0 {
		return errAllPagesFailed
	}
	return nil
}

// serveMetrics runs the metrics listener until ctx is canceled.
func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *slog.Logger) {
	if err := metrics.Serve(ctx, addr, m.Handler(), logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("metrics server failed", "addr", addr, "error", err)
	}
}

// newBrowser creates the renderer selected by cfg.Browser.
func newBrowser(ctx context.Context, cfg *config.Config, site config.SiteConfig, client *http.Client, logger *slog.Logger) (browser.Browser, error) {
	if cfg.Browser == config.BrowserStatic {
		return browser.NewStatic(client,
			browser.WithStaticLogger(logger),
			browser.WithMaxPageSize(cfg.MaxBodySize),
		), nil
	}

	opts := []browser.ChromeOption{
		browser.WithUserAgent(cfg.UserAgent),
		browser.WithLogger(logger),
	}
	if cfg.BrowserURL != "" {
		opts = append(opts, browser.WithRemoteURL(cfg.BrowserURL))
	}
	if cfg.ProxyAddress != "" {
		opts = append(opts, browser.WithProxy(cfg.ProxyAddress))
	}
	if headers := browserHeaders(site); len(headers) > 0 {
		opts = append(opts, browser.WithHeaders(headers))
	}
	return browser.NewChrome(ctx, opts...)
}

// browserHeaders returns the site headers plus the site cookie, if any.
func browserHeaders(site config.SiteConfig) map[string]string {
	headers := maps.Clone(site.Headers)
	if site.Cookie != "" {
		if headers == nil {
			headers = make(map[string]string, 1)
		}
		headers["Cookie"] = site.Cookie
	}
	return headers
}

func printPageResult(out io.Writer, n, total int, res *model.ScrapeResult) {
	fmt.Fprintf(out, "[%d/%d] %s: found %d, new %d, downloaded %d, already present %d, failed %d (%s)\n",
		n, total, res.Path,
		res.Found, res.New, res.Downloaded, res.AlreadyPresent, res.Failed,
		res.Elapsed.Round(time.Millisecond),
	)
}

// writeReport writes the summary to cfg.ReportFile, or to out when no file
// is set.
func writeReport(cfg *config.Config, format report.Format, out io.Writer, summary *model.RunSummary) error {
	output := out
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports list page URLs that may be private.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	} else {
		fmt.Fprintln(out)
	}

	w, err := report.NewWriter(format, output, getVersion())
	if err != nil {
		return err
	}
	_, err = w.Write(summary)
	return err
}
