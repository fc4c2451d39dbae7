package mirror

import "errors"

var (
	// ErrPathTraversal is returned when a URL maps outside the output root,
	// or contains a "." or ".." path segment.
	ErrPathTraversal = errors.New("path escapes output root")

	// ErrUnmappable is returned when a URL cannot be parsed or has no host.
	ErrUnmappable = errors.New("URL cannot be mapped to a local path")
)
