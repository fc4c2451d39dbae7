package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoWebsite is returned when no website base URL is configured.
	ErrNoWebsite = errors.New("no website specified: use --website or set website in the config file")

	// ErrInvalidWebsite is returned when the website is not an absolute http(s) URL.
	ErrInvalidWebsite = errors.New("invalid website: must be an absolute http or https URL")

	// ErrNoPages is returned when no page path is given on the command line
	// or in the config file.
	ErrNoPages = errors.New("no pages specified: provide page paths as arguments or under pages in the config file")

	// ErrInvalidTimeout is returned when a page or fetch timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidHydrationWait is returned when the hydration wait is negative.
	ErrInvalidHydrationWait = errors.New("invalid hydration wait: must be non-negative")

	// ErrInvalidConcurrency is returned when the fetch concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidMaxRedirects is returned when the redirect limit is negative.
	ErrInvalidMaxRedirects = errors.New("invalid max redirects: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// Use 0 for no limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidRate is returned when the request rate is negative.
	ErrInvalidRate = errors.New("invalid request rate: must be non-negative")

	// ErrUnknownBrowser is returned for a renderer other than chrome or static.
	ErrUnknownBrowser = errors.New("unknown browser: must be chrome or static")

	// ErrInvalidProxy is returned when the proxy address is not host:port.
	ErrInvalidProxy = errors.New("invalid proxy address: must be host:port")
)
