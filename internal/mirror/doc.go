// Package mirror owns the on-disk side of a mirror run: the mapping from
// normalized URLs to local paths, the registry that guarantees each asset
// is fetched once, and atomic file writes.
//
// # Layout
//
//	<root>/<host>[+port]/<path segments>/<file>
//
// Pages are stored in directory style (<path>/index.html) so a static file
// server resolves them by directory index. Assets keep their own names, with
// query strings folded into a hash and extensionless names carrying an '@'
// marker that the fetcher completes from the response media type. An asset
// directory URL is stored as @index@, which no page or literal name can take.
package mirror
