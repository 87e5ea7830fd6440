package testutil

import (
	"context"

	"github.com/hupe1980/stepflow/core"
	"github.com/hupe1980/stepflow/logging"
)

// RunBuilder constructs a RunContext for exercising nodes in isolation.
// Example:
//
//	rc := NewRunBuilder().Input("zip", "10115").Accumulated("email", "a@b.c").Build()
type RunBuilder struct {
	ctx           context.Context
	step          string
	input         map[string]any
	order         *OrderBuilder
	maxModelCalls int
	logger        logging.Logger
}

// NewRunBuilder creates a builder for step "start" of an empty order.
func NewRunBuilder() *RunBuilder {
	return &RunBuilder{
		ctx:   context.Background(),
		step:  "start",
		input: map[string]any{},
		order: NewOrderBuilder("order-test", "test"),
	}
}

// Context sets the ambient context (chainable).
func (b *RunBuilder) Context(ctx context.Context) *RunBuilder { b.ctx = ctx; return b }

// Step sets the step id (chainable).
func (b *RunBuilder) Step(step string) *RunBuilder { b.step = step; return b }

// Input sets a field of the current submission (chainable).
func (b *RunBuilder) Input(key string, val any) *RunBuilder {
	b.input[key] = val
	return b
}

// Accumulated sets a field of the order data (chainable).
func (b *RunBuilder) Accumulated(key string, val any) *RunBuilder {
	b.order.Data(key, val)
	return b
}

// MaxModelCalls sets the model call limit (chainable).
func (b *RunBuilder) MaxModelCalls(n int) *RunBuilder { b.maxModelCalls = n; return b }

// Logger sets the logger (chainable).
func (b *RunBuilder) Logger(l logging.Logger) *RunBuilder { b.logger = l; return b }

// Build returns a RunContext with a fresh Outcome. It panics when the
// snapshot cannot be built: an empty step or data that cannot be copied.
func (b *RunBuilder) Build() *core.RunContext {
	snap, err := core.NewContextBuilder().Build(b.order.At(b.step).Build(), b.step, b.input)
	if err != nil {
		panic(err)
	}
	return core.NewRunContext(b.ctx, "inv-test", snap, core.NewOutcome(), b.maxModelCalls, b.logger)
}
