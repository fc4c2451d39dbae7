package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

const (
	// DefaultMaxRedirects is the redirect limit used when none is configured.
	DefaultMaxRedirects = 10

	// DefaultUserAgent identifies the mirror to servers.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

// clientConfig holds the settings NewHTTPClient builds from.
type clientConfig struct {
	timeout         time.Duration
	maxRedirects    int
	proxyAddress    string
	userAgent       string
	cookie          string
	headers         map[string]string
	credentialHost  string
	maxConnsPerHost int
}

// ClientOption configures NewHTTPClient.
type ClientOption func(*clientConfig)

// WithTimeout sets the per-request timeout, covering connection, redirects
// and reading the body. Zero means no timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithMaxRedirects sets how many redirects a request may follow.
func WithMaxRedirects(n int) ClientOption {
	return func(c *clientConfig) {
		c.maxRedirects = n
	}
}

// WithProxy routes all connections through the SOCKS5 proxy at address
// ("host:port"). Without it, proxies from the environment are honoured.
func WithProxy(address string) ClientOption {
	return func(c *clientConfig) {
		c.proxyAddress = address
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *clientConfig) {
		c.userAgent = ua
	}
}

// WithCredentials injects a raw cookie string and extra headers into every
// request to host. An empty host applies them to all requests.
func WithCredentials(host, cookie string, headers map[string]string) ClientOption {
	return func(c *clientConfig) {
		c.credentialHost = strings.ToLower(host)
		c.cookie = cookie
		c.headers = headers
	}
}

// WithMaxConnsPerHost sizes the idle connection pool per host.
func WithMaxConnsPerHost(n int) ClientOption {
	return func(c *clientConfig) {
		c.maxConnsPerHost = n
	}
}

// NewHTTPClient creates the HTTP client used for asset downloads.
func NewHTTPClient(opts ...ClientOption) (*http.Client, error) {
	cfg := &clientConfig{
		maxRedirects:    DefaultMaxRedirects,
		userAgent:       DefaultUserAgent,
		maxConnsPerHost: 8,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.maxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if cfg.proxyAddress != "" {
		if !isValidProxyAddress(cfg.proxyAddress) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, cfg.proxyAddress)
		}
		dialer, err := proxy.SOCKS5("tcp", cfg.proxyAddress, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	maxRedirects := cfg.maxRedirects
	return &http.Client{
		Transport: &headerInjectingTransport{
			base:      transport,
			userAgent: cfg.userAgent,
			host:      cfg.credentialHost,
			cookie:    cfg.cookie,
			headers:   cfg.headers,
		},
		Timeout: cfg.timeout,
		Jar:     jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}, nil
}

// isValidProxyAddress checks if the address is in valid "host:port" format.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// headerInjectingTransport wraps an http.RoundTripper to set the
// User-Agent on every request and the site cookie and headers on requests
// to the site host.
type headerInjectingTransport struct {
	base      http.RoundTripper
	userAgent string
	host      string
	cookie    string
	headers   map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.userAgent != "" && clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}

	if t.host == "" || strings.EqualFold(clone.URL.Hostname(), t.host) {
		if t.cookie != "" {
			if existing := clone.Header.Get("Cookie"); existing != "" {
				clone.Header.Set("Cookie", existing+"; "+t.cookie)
			} else {
				clone.Header.Set("Cookie", t.cookie)
			}
		}
		for key, value := range t.headers {
			clone.Header.Set(key, value)
		}
	}

	return t.base.RoundTrip(clone)
}
