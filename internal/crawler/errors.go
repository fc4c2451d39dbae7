package crawler

import "errors"

var (
	// ErrInvalidURL is returned when a reference cannot be parsed or does
	// not resolve to an absolute URL with a host.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrNotFetchable is returned for references that are not network
	// resources (data:, blob:, javascript:, mailto:, tel:, about: and any
	// other non-http(s) scheme). Callers treat it as a skip, not a failure.
	ErrNotFetchable = errors.New("URL is not fetchable")
)
