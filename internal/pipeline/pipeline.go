package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/electrumscan/internal/metrics"
	"github.com/nao1215/electrumscan/internal/model"
)

// Step is one stage of a scan.
type Step interface {
	// Do runs the stage against run. Per-peer failures never surface here;
	// an error means the stage itself could not proceed, such as a missing
	// input artifact or a cancelled context.
	Do(ctx context.Context, run *model.ScanRun) error

	// Name returns the stage name used in logs, metrics and PerformedStages.
	Name() string
}

// Producer is implemented by steps that can report how many records they
// left on the run.
type Producer interface {
	Produced(run *model.ScanRun) int
}

// Pipeline runs steps in order.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	metrics         *metrics.Registry
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics records per-stage record counts and durations in reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(p *Pipeline) {
		p.metrics = reg
	}
}

// WithContinueOnError keeps running later steps after one fails. The
// default stops at the first failure, since later stages usually depend on
// the artifact the failed one should have written.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends several steps.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs every step in order. Cancellation is checked between steps;
// a cancelled run returns ctx.Err() without starting further steps.
//
// The first step error is returned. With WithContinueOnError the remaining
// steps still run and the first error is returned at the end.
func (p *Pipeline) Execute(ctx context.Context, run *model.ScanRun) error {
	var firstErr error
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("scan cancelled", "stage", step.Name(), "reason", err)
			return err
		}

		p.logger.Debug("stage started", "stage", step.Name())
		start := time.Now()
		err := step.Do(ctx, run)
		elapsed := time.Since(start)

		if err != nil {
			p.logger.Error("stage failed", "stage", step.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			if !p.continueOnError {
				return err
			}
			continue
		}

		produced := -1
		if pr, ok := step.(Producer); ok {
			produced = pr.Produced(run)
			p.metrics.RecordStage(step.Name(), produced, elapsed)
		}
		p.logger.Info("stage finished",
			"stage", step.Name(),
			"records", produced,
			"elapsed", elapsed.Round(time.Millisecond),
		)
		run.PerformedStages = append(run.PerformedStages, step.Name())
	}
	return firstErr
}

// StepCount returns the number of steps.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the step names in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
