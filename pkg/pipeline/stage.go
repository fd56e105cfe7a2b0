package pipeline

import (
	"context"
)

// Stage is one step of frame synthesis. Stages used by the producer run once per
// tick on the producer goroutine; they must not keep references to their input
// after Execute returns.
type Stage[In, Out any] interface {
	Execute(ctx context.Context, input In) (Out, error)
}

// StageFunc adapts a plain function to a Stage, mostly for tests that need to
// fail or observe a step.
type StageFunc[In, Out any] func(ctx context.Context, input In) (Out, error)

// Execute calls f.
func (f StageFunc[In, Out]) Execute(ctx context.Context, input In) (Out, error) {
	return f(ctx, input)
}
