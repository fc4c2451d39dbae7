package config

import (
	"net"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "pagemirror"

	// DefaultOutputDir is the mirror root, relative to the working directory.
	DefaultOutputDir = "page"

	// DefaultHydrationWait is how long the browser waits after load so
	// client-side code can request its assets.
	DefaultHydrationWait = 2 * time.Second

	// DefaultPageTimeout bounds loading one page and its asset fetches.
	DefaultPageTimeout = 2 * time.Minute

	// DefaultFetchTimeout bounds a single HTTP request.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultConcurrency is the number of concurrent asset fetches per page.
	DefaultConcurrency = 8

	// DefaultMaxRedirects is the number of redirects followed per fetch.
	DefaultMaxRedirects = 10

	// DefaultMaxBodySize caps a single asset body.
	DefaultMaxBodySize = 256 << 20

	// DefaultUserAgent identifies pagemirror in HTTP requests.
	DefaultUserAgent = "pagemirror/1.0 (+https://github.com/nao1215/pagemirror)"

	// DefaultPort is the offline server port.
	DefaultPort = 8080

	// BrowserChrome renders pages with headless Chrome.
	BrowserChrome = "chrome"

	// BrowserStatic fetches pages over plain HTTP without running scripts.
	BrowserStatic = "static"
)

// Config holds all configuration options for a mirror run. It is populated
// from CLI flags and the config file and passed down explicitly.
type Config struct {
	// Website is the base URL pages are resolved against.
	Website string

	// Pages are the page paths to scrape, in order.
	Pages []string

	// OutputDir is the mirror root.
	OutputDir string

	// HydrationWait is how long the browser waits after load.
	HydrationWait time.Duration

	// PageTimeout bounds loading one page, not counting the hydration wait,
	// and separately the page's asset fetches. Fetches still outstanding
	// when it expires are recorded as failed.
	PageTimeout time.Duration

	// FetchTimeout bounds a single HTTP request.
	FetchTimeout time.Duration

	// Concurrency is the number of concurrent asset fetches per page.
	Concurrency int

	// MaxRedirects is the number of redirects followed per fetch.
	MaxRedirects int

	// MaxBodySize caps a single asset body in bytes. 0 means no limit.
	MaxBodySize int64

	// UserAgent is sent by the fetcher and the browser.
	UserAgent string

	// RequestsPerSecond limits asset fetches. 0 means no limit.
	RequestsPerSecond float64

	// Browser selects the renderer: BrowserChrome or BrowserStatic.
	Browser string

	// BrowserURL is a remote DevTools URL. When empty a local Chrome is started.
	BrowserURL string

	// ProxyAddress is an optional SOCKS5 proxy in host:port form.
	ProxyAddress string

	// RewriteCrossOrigin also rewrites references to other hosts.
	RewriteCrossOrigin bool

	// ReportFormat is the report format: text, markdown or json.
	ReportFormat string

	// ReportFile is where the report is written. Empty means stdout.
	ReportFile string

	// DBDir is the directory of the manifest database.
	DBDir string

	// SaveToDB records the run in the manifest database.
	SaveToDB bool

	// MetricsAddr exposes Prometheus metrics on this address when set.
	MetricsAddr string

	// LogFile adds a rotating log file next to stderr.
	LogFile string

	// LogJSON switches log output to JSON.
	LogJSON bool

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the explicit config file path, if any.
	ConfigFilePath string

	// SiteConfigs holds the loaded config file, or nil.
	SiteConfigs *File
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		OutputDir:     DefaultOutputDir,
		HydrationWait: DefaultHydrationWait,
		PageTimeout:   DefaultPageTimeout,
		FetchTimeout:  DefaultFetchTimeout,
		Concurrency:   DefaultConcurrency,
		MaxRedirects:  DefaultMaxRedirects,
		MaxBodySize:   DefaultMaxBodySize,
		UserAgent:     DefaultUserAgent,
		Browser:       BrowserChrome,
		ReportFormat:  "text",
		DBDir:         XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory, e.g. ~/.local/share/pagemirror.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory, e.g. ~/.config/pagemirror.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Host returns the lowercase host of the website, without the port.
func (c *Config) Host() string {
	u, err := url.Parse(c.Website)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Site returns the config file settings for the website's host, merged
// with the file defaults. It is the zero SiteConfig without a file.
func (c *Config) Site() SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	return c.SiteConfigs.GetSiteConfig(c.Host())
}

// ApplyFile fills settings the command line left empty from the config
// file: the website, the page list and the hydration wait.
// waitSet reports whether the hydration wait was set explicitly.
func (c *Config) ApplyFile(waitSet bool) {
	if c.SiteConfigs == nil {
		return
	}
	if c.Website == "" {
		c.Website = c.SiteConfigs.Website
	}

	site := c.Site()
	if len(c.Pages) == 0 {
		c.Pages = append(c.Pages, site.Pages...)
	}
	if !waitSet && site.HydrationWait > 0 {
		c.HydrationWait = site.HydrationWait
	}
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.Website == "" {
		return ErrNoWebsite
	}
	u, err := url.Parse(c.Website)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidWebsite
	}

	if len(c.Pages) == 0 {
		return ErrNoPages
	}
	if c.PageTimeout <= 0 || c.FetchTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.HydrationWait < 0 {
		return ErrInvalidHydrationWait
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.MaxRedirects < 0 {
		return ErrInvalidMaxRedirects
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.RequestsPerSecond < 0 {
		return ErrInvalidRate
	}
	if c.Browser != BrowserChrome && c.Browser != BrowserStatic {
		return ErrUnknownBrowser
	}
	if c.ProxyAddress != "" {
		if _, _, err := net.SplitHostPort(c.ProxyAddress); err != nil {
			return ErrInvalidProxy
		}
	}
	return nil
}
