package browser

import (
	"context"
	"errors"
	"time"

	"github.com/nao1215/pagemirror/internal/model"
)

var (
	// ErrNavigation is returned when a page cannot be loaded or read.
	// It is fatal for that page only.
	ErrNavigation = errors.New("navigation failed")

	// ErrUnavailable is returned when the browser cannot be started or
	// reached. It is fatal for the run.
	ErrUnavailable = errors.New("browser unavailable")
)

// Browser renders a page and returns its hydrated snapshot.
type Browser interface {
	// Render loads target, waits for wait, and returns the snapshot.
	Render(ctx context.Context, target string, wait time.Duration) (*model.RenderedPage, error)

	// Close releases the browser.
	Close() error
}
