package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/stepflow/core"
	"github.com/hupe1980/stepflow/flow"
	"github.com/hupe1980/stepflow/internal/util"
	"github.com/hupe1980/stepflow/logging"
	"github.com/hupe1980/stepflow/metric"
)

var _ core.OrderRunner = (*Runner)(nil)

// Executor executes single steps. engine.Engine implements it.
type Executor interface {
	Execute(ctx context.Context, stepID string, snap *core.Snapshot) (*core.Response, error)
	GetFlow(name string) (*flow.Flow, bool)
}

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// ContextBuilder builds the snapshots handed to the executor.
	ContextBuilder *core.ContextBuilder
	// IDGenerator produces order ids. Defaults to random UUIDs.
	IDGenerator func() string
	// MaxConflictRetries is the number of times a submission is retried
	// after losing an optimistic concurrency race.
	MaxConflictRetries int
	// AllowRevisit permits submissions to previously committed steps.
	AllowRevisit bool
	// Clock timestamps commits.
	Clock func() time.Time
	// Metrics records order lifecycle metrics. Nil disables metrics.
	Metrics *metric.RunnerMetrics
	// Logging services.
	Logger logging.Logger
}

// Runner coordinates order lifecycles: it creates orders, validates which
// step may be submitted, executes steps and commits responses. Public
// methods are safe for concurrent use.
type Runner struct {
	exec  Executor
	store core.OrderStore

	builder      *core.ContextBuilder
	newID        func() string
	maxRetries   int
	allowRevisit bool
	now          func() time.Time
	metrics      *metric.RunnerMetrics
	logger       logging.Logger
}

// New constructs a Runner with optional overrides.
func New(exec Executor, store core.OrderStore, optFns ...func(o *Options)) *Runner {
	opts := Options{
		ContextBuilder:     core.NewContextBuilder(),
		IDGenerator:        util.NewID,
		MaxConflictRetries: 3,
		Clock:              func() time.Time { return time.Now().UTC() },
		Logger:             logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Runner{
		exec:         exec,
		store:        store,
		builder:      opts.ContextBuilder,
		newID:        opts.IDGenerator,
		maxRetries:   opts.MaxConflictRetries,
		allowRevisit: opts.AllowRevisit,
		now:          opts.Clock,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
	}
}

// Start creates an order of flowName positioned at the flow's start step.
// initial is deep-copied into the order data.
func (r *Runner) Start(ctx context.Context, flowName string, initial map[string]any) (*core.Order, error) {
	f, ok := r.exec.GetFlow(flowName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrFlowNotFound, flowName)
	}

	if err := core.CheckCopyable(initial); err != nil {
		return nil, err
	}

	o := core.NewOrder(r.newID(), f.Name, f.Start, initial)
	if err := r.store.Create(ctx, o); err != nil {
		return nil, err
	}

	r.metrics.OrderStarted(f.Name)
	r.logger.Info("runner.order.started", "order_id", o.ID, "flow", f.Name, "step", f.Start)

	return o, nil
}

// Submit executes stepID of the order with input and commits the response
// unless it is invalid.
//
// Errors:
//   - ErrOrderNotFound when the order does not exist
//   - ErrOrderClosed when the order is completed, rejected or cancelled
//   - ErrStepNotAllowed when stepID is neither the current step nor, with
//     AllowRevisit, a previously committed one
//   - ErrVersionConflict when every retry lost a concurrent update
func (r *Runner) Submit(ctx context.Context, orderID, stepID string, input map[string]any) (*core.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := r.submit(ctx, orderID, stepID, input)
		if err == nil {
			return resp, nil
		}

		if !errors.Is(err, core.ErrVersionConflict) || attempt >= r.maxRetries {
			return nil, err
		}

		r.metrics.Conflict()
		r.logger.Warn("runner.submit.conflict", "order_id", orderID, "step", stepID, "attempt", attempt+1)

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

func (r *Runner) submit(ctx context.Context, orderID, stepID string, input map[string]any) (*core.Response, error) {
	o, err := r.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !o.IsOpen() {
		return nil, fmt.Errorf("%w: %s is %s", core.ErrOrderClosed, o.ID, o.Status)
	}

	if err := r.checkStep(o, stepID); err != nil {
		return nil, err
	}

	snap, err := r.builder.Build(o, stepID, input)
	if err != nil {
		return nil, err
	}

	resp, err := r.exec.Execute(ctx, stepID, snap)
	if err != nil {
		return nil, err
	}

	if !resp.Committable() {
		r.logger.Debug("runner.submit.invalid", "order_id", o.ID, "step", stepID, "errors", len(resp.Errors))
		return resp, nil
	}

	o.Commit(resp, r.now())

	if err := r.store.Update(ctx, o); err != nil {
		return nil, err
	}

	r.metrics.Committed(o.Flow, string(o.Status))
	r.logger.Info(
		"runner.submit.committed",
		"order_id", o.ID,
		"step", stepID,
		"status", string(resp.Status),
		"next_step", resp.NextStep,
		"version", o.Version,
	)

	return resp, nil
}

func (r *Runner) checkStep(o *core.Order, stepID string) error {
	if stepID == o.CurrentStep {
		return nil
	}

	if r.allowRevisit && o.Visited(stepID) {
		return nil
	}

	return fmt.Errorf("%w: %s is at step %s, got %s", core.ErrStepNotAllowed, o.ID, o.CurrentStep, stepID)
}

// Get returns the order with id.
func (r *Runner) Get(ctx context.Context, id string) (*core.Order, error) {
	return r.store.Get(ctx, id)
}

// List returns all orders.
func (r *Runner) List(ctx context.Context) ([]*core.Order, error) {
	return r.store.List(ctx)
}

// Cancel moves an open order to the cancelled state.
func (r *Runner) Cancel(ctx context.Context, id string) (*core.Order, error) {
	for attempt := 0; ; attempt++ {
		o, err := r.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		if !o.IsOpen() {
			return nil, fmt.Errorf("%w: %s is %s", core.ErrOrderClosed, o.ID, o.Status)
		}

		o.Status = core.OrderCancelled
		o.Updated = r.now()

		err = r.store.Update(ctx, o)
		if err == nil {
			r.metrics.Committed(o.Flow, string(o.Status))
			r.logger.Info("runner.order.cancelled", "order_id", o.ID, "flow", o.Flow)
			return o, nil
		}

		if !errors.Is(err, core.ErrVersionConflict) || attempt >= r.maxRetries {
			return nil, err
		}

		r.metrics.Conflict()
	}
}
