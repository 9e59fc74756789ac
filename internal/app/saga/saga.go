// Package saga runs a sequence of steps with compensating rollback. If a
// step fails, the steps that already completed are rolled back in reverse
// order and the failure is returned.
//
//	s := saga.New("purchase")
//	_ = s.Add(saga.Step{Name: "reserve credit", Do: reserve, Compensate: release})
//	_ = s.Add(saga.Step{Name: "request number", Do: request, Compensate: cancel})
//	err := s.Run(ctx)
//
// A Saga is single-use and not safe for concurrent use.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jsamuelsen11/numbers-core/internal/platform/logging"
)

// ErrAlreadyRun is returned by Add and Run on a saga that already ran.
var ErrAlreadyRun = errors.New("saga: already run")

// ErrNilStep is returned by Add for a step without a Do function.
var ErrNilStep = errors.New("saga: step has no Do function")

// Step is one unit of work. Compensate may be nil for steps with nothing to
// undo.
type Step struct {
	Name       string
	Do         func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// StepError reports which step failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Saga is an ordered list of steps.
type Saga struct {
	name  string
	steps []Step
	ran   bool
}

// New creates an empty saga. name appears in log records.
func New(name string) *Saga {
	return &Saga{name: name}
}

// Add appends a step.
func (s *Saga) Add(step Step) error {
	if step.Do == nil {
		return ErrNilStep
	}
	if s.ran {
		return ErrAlreadyRun
	}
	s.steps = append(s.steps, step)
	return nil
}

// Run executes the steps in order. On failure it compensates completed
// steps in reverse order using a context that is not cancelled with ctx,
// logs compensation errors without stopping, and returns a *StepError.
func (s *Saga) Run(ctx context.Context) error {
	if s.ran {
		return ErrAlreadyRun
	}
	s.ran = true

	logger := logging.FromContext(ctx)

	for i, step := range s.steps {
		logger.DebugContext(ctx, "executing saga step",
			slog.String("saga", s.name),
			slog.Int("step", i+1),
			slog.Int("total", len(s.steps)),
			slog.String("action", step.Name),
		)

		if err := step.Do(ctx); err != nil {
			logger.WarnContext(ctx, "saga step failed, compensating",
				slog.String("saga", s.name),
				slog.Int("failed_step", i+1),
				slog.String("action", step.Name),
				slog.Any("error", err),
			)
			s.compensate(context.WithoutCancel(ctx), i-1, logger)
			return &StepError{Step: step.Name, Err: err}
		}
	}
	return nil
}

// compensate rolls back steps 0..upTo (inclusive) in reverse order.
func (s *Saga) compensate(ctx context.Context, upTo int, logger *slog.Logger) {
	for i := upTo; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			continue
		}

		logger.InfoContext(ctx, "compensating saga step",
			slog.String("saga", s.name),
			slog.Int("step", i+1),
			slog.String("action", step.Name),
		)

		if err := step.Compensate(ctx); err != nil {
			logger.ErrorContext(ctx, "compensation failed",
				slog.String("saga", s.name),
				slog.Int("step", i+1),
				slog.String("action", step.Name),
				slog.Any("error", err),
			)
		}
	}
}
