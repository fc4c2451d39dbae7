// Package fetch downloads assets over HTTP and stores them in the mirror.
//
// The HTTP client is built by NewHTTPClient. It bounds redirects, keeps a
// cookie jar, injects per-site cookies and headers, and can route every
// connection through a SOCKS5 proxy. Fetcher adds an optional request rate
// limit, a body size cap, and media-type based extension completion for
// extensionless paths.
//
// Error taxonomy:
//
//   - *FetchError: the server answered with a non-2xx status
//   - *NetworkError: the request never produced a response
//   - ErrTooManyRedirects: the redirect chain exceeded the configured limit
//   - ErrBodyTooLarge: the body exceeded the configured size
package fetch
