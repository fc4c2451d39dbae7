package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/nao1215/pagemirror/internal/model"
)

// performanceScript lists the URLs of every resource the page requested.
const performanceScript = `performance.getEntriesByType('resource').map(r => r.name)`

// chromeConfig holds the settings NewChrome builds from.
type chromeConfig struct {
	remoteURL string
	userAgent string
	proxy     string
	headers   map[string]string
	logger    *slog.Logger
}

// ChromeOption configures NewChrome.
type ChromeOption func(*chromeConfig)

// WithRemoteURL connects to an already running browser through its
// DevTools websocket URL instead of launching a local one.
func WithRemoteURL(devtoolsURL string) ChromeOption {
	return func(c *chromeConfig) {
		c.remoteURL = devtoolsURL
	}
}

// WithUserAgent overrides the browser User-Agent. Local browsers only.
func WithUserAgent(ua string) ChromeOption {
	return func(c *chromeConfig) {
		c.userAgent = ua
	}
}

// WithProxy routes browser traffic through a SOCKS5 proxy ("host:port").
// Local browsers only.
func WithProxy(address string) ChromeOption {
	return func(c *chromeConfig) {
		c.proxy = address
	}
}

// WithHeaders sends extra headers (including Cookie) with every request
// the page makes.
func WithHeaders(headers map[string]string) ChromeOption {
	return func(c *chromeConfig) {
		c.headers = headers
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ChromeOption {
	return func(c *chromeConfig) {
		c.logger = logger
	}
}

// Chrome renders pages in headless Chrome. Each Render opens a new tab in
// a shared browser process.
type Chrome struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	headers       map[string]string
	logger        *slog.Logger
}

var _ Browser = (*Chrome)(nil)

// NewChrome starts (or connects to) the browser. The browser lives until
// Close is called or ctx is canceled.
func NewChrome(ctx context.Context, opts ...ChromeOption) (*Chrome, error) {
	cfg := &chromeConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if cfg.remoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.remoteURL)
	} else {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
		)
		if cfg.userAgent != "" {
			execOpts = append(execOpts, chromedp.UserAgent(cfg.userAgent))
		}
		if cfg.proxy != "" {
			execOpts = append(execOpts, chromedp.ProxyServer("socks5://"+cfg.proxy))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, execOpts...)
	}

	logger := cfg.logger
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
		}),
	)

	// Running no actions starts the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return &Chrome{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		headers:       cfg.headers,
		logger:        logger,
	}, nil
}

// Render navigates a new tab to target, waits for wait, then captures the
// performance resource entries, document.baseURI and the outer HTML.
func (c *Chrome) Render(ctx context.Context, target string, wait time.Duration) (*model.RenderedPage, error) {
	if err := c.browserCtx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	tabCtx, cancel := chromedp.NewContext(c.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		tabCtx, cancelDeadline = context.WithDeadline(tabCtx, deadline)
		defer cancelDeadline()
	}

	var (
		entries []string
		baseURI string
		html    string
	)

	actions := make([]chromedp.Action, 0, 7)
	if len(c.headers) > 0 {
		headers := make(network.Headers, len(c.headers))
		for k, v := range c.headers {
			headers[k] = v
		}
		actions = append(actions, network.Enable(), network.SetExtraHTTPHeaders(headers))
	}
	actions = append(actions,
		chromedp.Navigate(target),
		chromedp.Sleep(wait),
		chromedp.Evaluate(performanceScript, &entries),
		chromedp.Evaluate(`document.baseURI`, &baseURI),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)

	start := time.Now()
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNavigation, target, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrNavigation, target, err)
	}

	base, err := url.Parse(baseURI)
	if err != nil || !base.IsAbs() {
		base, err = url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNavigation, target, err)
		}
	}

	c.logger.Debug("page rendered",
		"url", target,
		"base", base.String(),
		"resources", len(entries),
		"html_bytes", len(html),
		"elapsed", time.Since(start),
	)

	return &model.RenderedPage{
		HTML:               html,
		PerformanceEntries: entries,
		BaseURL:            base,
	}, nil
}

// Close shuts the browser down.
func (c *Chrome) Close() error {
	err := chromedp.Cancel(c.browserCtx)
	c.browserCancel()
	c.allocCancel()
	return err
}
