package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/pagemirror/internal/model"
)

// Step is one stage of the page pipeline.
type Step interface {
	// Do executes the step. It returns an error only when the page cannot
	// continue; recoverable problems are recorded in the record.
	Do(ctx context.Context, record *model.PageRecord) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline runs the steps of one page in order. Each step consumes what the
// previous one left on the record, so the first failure ends the page.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddSteps appends steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps against record. Cancellation is checked before
// each step. On failure the record is marked failed and carries the error,
// wrapped with the name of the step that failed.
func (p *Pipeline) Execute(ctx context.Context, record *model.PageRecord) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("page abandoned",
				"step", step.Name(),
				"page", record.URL,
				"reason", err,
			)
			return p.fail(record, err)
		}

		start := time.Now()
		err := step.Do(ctx, record)
		elapsed := time.Since(start)
		if err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"page", record.URL,
				"elapsed", elapsed,
				"error", err,
			)
			return p.fail(record, fmt.Errorf("%s: %w", step.Name(), err))
		}

		p.logger.Debug("step done",
			"step", step.Name(),
			"page", record.URL,
			"elapsed", elapsed,
		)
		record.PerformedSteps = append(record.PerformedSteps, step.Name())
	}
	return nil
}

func (p *Pipeline) fail(record *model.PageRecord, err error) error {
	record.State = model.PageStateFailed
	record.Err = err
	return err
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
