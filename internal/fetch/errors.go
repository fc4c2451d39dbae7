package fetch

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nao1215/pagemirror/internal/model"
)

var (
	// ErrTooManyRedirects is returned when a redirect chain is longer than
	// the configured maximum.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrBodyTooLarge is returned when a response body exceeds the size cap.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrInvalidProxyAddress is returned when the proxy address format is
	// invalid. Expected format is "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")
)

// FetchError is returned when the server responds with a non-2xx status.
type FetchError struct {
	URL        model.NormalizedURL
	StatusCode int
}

// Error implements error.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTPStatus returns the response status code.
func (e *FetchError) HTTPStatus() int {
	return e.StatusCode
}

// NetworkError is returned when a request fails before a response arrives:
// DNS, connection, TLS, timeout or cancellation.
type NetworkError struct {
	URL model.NormalizedURL
	Err error
}

// Error implements error.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *NetworkError) Unwrap() error {
	return e.Err
}
