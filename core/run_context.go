package core

import (
	"context"

	"github.com/hupe1980/stepflow/logging"
)

// RunContext carries the execution scope handed to every node of a step.
// It aggregates:
//   - The ambient cancellation Context
//   - The InvocationID correlating logs, metrics and the response
//   - The read-only Snapshot (input)
//   - The Outcome (output) nodes write to
//   - A per-execution model call Limiter
//
// Nodes read exclusively from Snapshot and write exclusively to Outcome.
type RunContext struct {
	Context      context.Context
	InvocationID string
	Snapshot     *Snapshot
	Outcome      *Outcome
	Limiter      *ModelLimiter

	*loggerAdapter
}

// NewRunContext constructs a RunContext with a fresh model call limiter.
func NewRunContext(
	ctx context.Context,
	invocationID string,
	snap *Snapshot,
	outcome *Outcome,
	maxModelCalls int,
	logger logging.Logger,
) *RunContext {
	return &RunContext{
		Context:       ctx,
		InvocationID:  invocationID,
		Snapshot:      snap,
		Outcome:       outcome,
		Limiter:       NewModelLimiter(maxModelCalls),
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// WithContext returns a shallow copy bound to ctx. Snapshot, Outcome and
// Limiter are shared with the receiver.
func (rc *RunContext) WithContext(ctx context.Context) *RunContext {
	c := *rc
	c.Context = ctx
	return &c
}

// Current is shorthand for rc.Snapshot.Current().
func (rc *RunContext) Current() Values { return rc.Snapshot.Current() }

// Merged is shorthand for rc.Snapshot.Merged().
func (rc *RunContext) Merged() Values { return rc.Snapshot.Merged() }
