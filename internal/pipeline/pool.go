package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/pagemirror/internal/mirror"
	"github.com/nao1215/pagemirror/internal/model"
)

// Fetcher downloads one asset to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, u model.NormalizedURL, dest string) (*model.FetchResult, error)
}

// FetchPool downloads the pending assets of a page concurrently.
type FetchPool struct {
	fetcher     Fetcher
	registry    *mirror.Registry
	concurrency int
	logger      *slog.Logger
}

// PoolOption configures a FetchPool.
type PoolOption func(*FetchPool)

// WithConcurrency sets the maximum number of concurrent fetches.
// Default is 8 if not specified.
func WithConcurrency(n int) PoolOption {
	return func(p *FetchPool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithPoolLogger sets a custom logger for the pool.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *FetchPool) {
		p.logger = logger
	}
}

// NewFetchPool creates a FetchPool that records outcomes in registry.
func NewFetchPool(fetcher Fetcher, registry *mirror.Registry, opts ...PoolOption) *FetchPool {
	p := &FetchPool{
		fetcher:     fetcher,
		registry:    registry,
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Run fetches every pending asset of record and waits for all of them.
// Each outcome is stored in the registry and on the record. Failures are
// logged and never returned; canceling ctx fails the remaining fetches.
func (p *FetchPool) Run(ctx context.Context, record *model.PageRecord) {
	if len(record.Pending) == 0 {
		return
	}

	p.logger.Debug("fetching assets",
		"page", record.URL,
		"assets", len(record.Pending),
		"concurrency", p.concurrency,
	)

	startTime := time.Now()
	var failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for _, job := range record.Pending {
		g.Go(func() error {
			outcome := model.AssetOutcome{
				URL:    job.Ref.URL,
				Source: job.Ref.Source,
			}

			if err := ctx.Err(); err != nil {
				outcome.Status = model.AssetFailed
				outcome.Err = err
			} else if res, err := p.fetcher.Fetch(ctx, job.Ref.URL, job.Dest); err != nil {
				outcome.Status = model.AssetFailed
				outcome.Err = err
			} else {
				outcome.Status = model.AssetFetched
				outcome.LocalPath = res.LocalPath
				outcome.ContentType = res.ContentType
				outcome.Bytes = res.BytesWritten
				outcome.StatusCode = res.StatusCode
			}

			if outcome.Err != nil {
				failed.Add(1)
				attrs := []any{"url", outcome.URL, "source", outcome.Source, "error", outcome.Err}
				if errors.Is(outcome.Err, context.DeadlineExceeded) || errors.Is(outcome.Err, context.Canceled) {
					p.logger.Warn("asset fetch aborted", attrs...)
				} else {
					p.logger.Warn("asset fetch failed", attrs...)
				}
				if code, ok := statusCode(outcome.Err); ok {
					outcome.StatusCode = code
				}
			}
			outcome.CompletedAt = time.Now()

			p.registry.Complete(outcome)
			record.AddOutcome(outcome)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers never return errors

	p.logger.Debug("assets fetched",
		"page", record.URL,
		"assets", len(record.Pending),
		"failed", failed.Load(),
		"elapsed", time.Since(startTime),
	)
}

// statusCode extracts an HTTP status from an error that carries one.
func statusCode(err error) (int, bool) {
	var sc interface{ HTTPStatus() int }
	if errors.As(err, &sc) {
		return sc.HTTPStatus(), true
	}
	return 0, false
}
