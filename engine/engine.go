package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/stepflow/core"
	"github.com/hupe1980/stepflow/flow"
	"github.com/hupe1980/stepflow/logging"
	"github.com/hupe1980/stepflow/metric"
)

// Config defines tuning parameters for the Engine's operational behavior.
//
// This configuration focuses on core performance and behavioral aspects:
//   - Concurrency: How many step executions can run simultaneously
//   - Timeouts: How long a single node may run
//   - Model usage: How many model calls a single step may make
//
// Example:
//
//	cfg := Config{
//	    MaxConcurrentExecutions: 50,
//	    NodeTimeout:             10 * time.Second,
//	    MaxModelCalls:           2,
//	}
type Config struct {
	// MaxConcurrentExecutions limits the number of step executions that can
	// run simultaneously. Excess executions wait for a free slot or for their
	// context to end. Set to 0 for unlimited.
	MaxConcurrentExecutions int

	// NodeTimeout bounds the runtime of each node. A node exceeding it aborts
	// the execution with a transient error. Set to 0 to disable.
	NodeTimeout time.Duration

	// MaxModelCalls caps the model calls of one step execution across all
	// model nodes. Set to 0 for unlimited.
	MaxModelCalls int
}

// DefaultConfig provides production-ready default configuration values.
//
// Configuration values:
//   - MaxConcurrentExecutions: 64
//   - NodeTimeout: 30s (model nodes dominate node runtime)
//   - MaxModelCalls: 3
var DefaultConfig = Config{
	MaxConcurrentExecutions: 64,
	NodeTimeout:             30 * time.Second,
	MaxModelCalls:           3,
}

// Options configures an Engine instance using the functional options pattern.
//
// Example:
//
//	eng := engine.New(func(o *engine.Options) {
//	    o.Logger = logger
//	    o.Config.NodeTimeout = 5 * time.Second
//	})
type Options struct {
	// Config contains operational parameters for the engine behavior.
	// Defaults to DefaultConfig if not specified.
	Config Config

	// Logger provides structured logging for debugging and monitoring.
	// Defaults to NoOp logger if nil to ensure no logging dependencies.
	Logger logging.Logger

	// Metrics records execution metrics. Nil disables metrics.
	Metrics *metric.EngineMetrics

	// Callbacks hooks into the execution lifecycle. Nil disables callbacks.
	Callbacks *CallbackManager

	// IDGenerator produces invocation ids. Defaults to uuid.NewString.
	IDGenerator func() string
}

var _ core.StepExecutor = (*Engine)(nil)

// Engine executes single steps of registered flows.
//
// The Engine is stateless with respect to orders: it receives a read-only
// Snapshot, runs the nodes of the addressed step and returns a Response. It
// never reads or writes an order record; persisting the Response is the
// caller's job (see runner.Runner).
//
// Core Responsibilities:
//   - Flow Registry: Thread-safe registration and lookup of validated flows
//   - Step Execution: Sequential node execution with fail-fast validation
//   - Routing: Resolving the next step of accepted submissions
//   - Resource Management: Concurrency limits, node timeouts, model call limits
//
// Data Ownership:
//   - Nodes read exclusively from the Snapshot, which is immutable
//   - Nodes write exclusively to a fresh Outcome owned by the execution
//   - The Response carries frozen copies of the Outcome; later changes to
//     anything the engine saw are never observable through it
//
// Error Handling:
//   - Validation failures are data (ResponseInvalid), not errors
//   - Node errors, panics and timeouts abort the execution with an error
//   - Unknown flows or steps are reported as invalid errors
type Engine struct {
	logger    logging.Logger
	metrics   *metric.EngineMetrics
	callbacks *CallbackManager
	newID     func() string

	config Config
	sem    chan struct{}

	flows map[string]*flow.Flow
	mu    sync.RWMutex

	activeExecutions map[string]context.CancelFunc
	executionsMu     sync.Mutex
}

// New creates a new Engine instance with sensible defaults and optional configuration.
//
// The returned Engine is immediately ready for use and is safe for concurrent
// access. Flows must be registered before they can be executed.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:      DefaultConfig,
		Logger:      logging.NoOpLogger{},
		IDGenerator: uuid.NewString,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.IDGenerator == nil {
		opts.IDGenerator = uuid.NewString
	}

	var sem chan struct{}
	if opts.Config.MaxConcurrentExecutions > 0 {
		sem = make(chan struct{}, opts.Config.MaxConcurrentExecutions)
	}

	return &Engine{
		logger:           opts.Logger,
		metrics:          opts.Metrics,
		callbacks:        opts.Callbacks,
		newID:            opts.IDGenerator,
		config:           opts.Config,
		sem:              sem,
		flows:            make(map[string]*flow.Flow),
		activeExecutions: make(map[string]context.CancelFunc),
	}
}

// Register validates f and adds it to the registry under f.Name. A flow
// registered under an existing name replaces the previous definition;
// executions already running keep the definition they started with.
func (e *Engine) Register(f *flow.Flow) error {
	if f == nil {
		return core.WrapInvalid(core.ErrInvalidArgument, "engine", "Register", "flow is nil")
	}

	if err := f.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	_, replaced := e.flows[f.Name]
	e.flows[f.Name] = f
	e.mu.Unlock()

	e.logger.Info("engine.flow.registered", "flow", f.Name, "steps", len(f.Steps()), "replaced", replaced)

	return nil
}

// GetFlow retrieves a registered flow by name.
func (e *Engine) GetFlow(name string) (*flow.Flow, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.flows[name]
	return f, ok
}

// Flows returns the names of all registered flows in sorted order.
func (e *Engine) Flows() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.flows))
	for name := range e.flows {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Execute runs step stepID of the snapshot's flow and returns its Response.
//
// Execution:
//  1. The flow and step are resolved; unknown names fail with ErrFlowNotFound
//     or ErrStepNotFound
//  2. A concurrency slot is acquired, honouring ctx cancellation
//  3. Nodes run in declaration order against a fresh Outcome; execution stops
//     after the first node that records validation failures or rejects
//  4. The Response is built from frozen copies of the Outcome and, for
//     accepted submissions, the next step is resolved
//
// Response semantics by status:
//   - invalid: Validated and Backend are empty, NextStep equals stepID
//   - rejected: Validated holds the submission, NextStep equals stepID
//   - accepted: Validated holds the submission, NextStep is the successor
//   - completed: Validated holds the submission, NextStep is empty
//
// Frontend is populated in every case so clients can render messages.
//
// Example:
//
//	snap, err := core.NewContextBuilder().Build(order, "address", input)
//	if err != nil {
//	    return err
//	}
//	resp, err := eng.Execute(ctx, "address", snap)
func (e *Engine) Execute(ctx context.Context, stepID string, snap *core.Snapshot) (*core.Response, error) {
	if snap == nil {
		return nil, core.WrapInvalid(core.ErrInvalidArgument, "engine", "Execute", "snapshot is nil")
	}

	if stepID == "" {
		stepID = snap.Step()
	}

	if stepID != snap.Step() {
		return nil, core.WrapInvalid(core.ErrInvalidArgument, "engine", "Execute",
			fmt.Sprintf("snapshot was built for step %s, not %s", snap.Step(), stepID))
	}

	f, ok := e.GetFlow(snap.Flow())
	if !ok {
		return nil, core.WrapInvalid(core.ErrFlowNotFound, "engine", "Execute", "flow "+snap.Flow())
	}

	step, ok := f.Step(stepID)
	if !ok {
		return nil, core.WrapInvalid(core.ErrStepNotFound, "engine", "Execute", "step "+stepID)
	}

	release, err := e.acquire(ctx)
	if err != nil {
		return nil, core.WrapTransient(err, "engine", "Execute", "waiting for execution slot")
	}
	defer release()

	done := e.metrics.Begin()
	defer done()

	invocationID := e.newID()

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.executionsMu.Lock()
	e.activeExecutions[invocationID] = cancel
	e.executionsMu.Unlock()

	defer func() {
		e.executionsMu.Lock()
		delete(e.activeExecutions, invocationID)
		e.executionsMu.Unlock()
	}()

	start := time.Now()
	outcome := core.NewOutcome()
	rc := core.NewRunContext(execCtx, invocationID, snap, outcome, e.config.MaxModelCalls, e.executionLogger(snap.OrderID(), invocationID))

	cbCtx := &CallbackContext{
		InvocationID: invocationID,
		Flow:         f.Name,
		Step:         step.ID,
		Snapshot:     snap,
		Outcome:      outcome,
	}

	if err := e.callbacks.ExecuteCallbacks(execCtx, CallbackBeforeStep, cbCtx); err != nil {
		return nil, e.fail(rc, cbCtx, "", fmt.Errorf("engine: step %s: before_step callback: %w", step.ID, err))
	}

	for _, node := range step.Nodes {
		cbCtx.Node = node.Name()

		if err := e.callbacks.ExecuteCallbacks(execCtx, CallbackBeforeNode, cbCtx); err != nil {
			return nil, e.fail(rc, cbCtx, node.Name(), fmt.Errorf("engine: step %s: before_node callback: %w", step.ID, err))
		}

		if err := e.runNode(rc, node); err != nil {
			e.metrics.NodeError(f.Name, step.ID, node.Name())
			return nil, e.fail(rc, cbCtx, node.Name(), err)
		}

		if err := e.callbacks.ExecuteCallbacks(execCtx, CallbackAfterNode, cbCtx); err != nil {
			return nil, e.fail(rc, cbCtx, node.Name(), fmt.Errorf("engine: step %s: after_node callback: %w", step.ID, err))
		}

		if outcome.Failed() {
			break
		}

		if rejected, _ := outcome.Rejected(); rejected {
			break
		}
	}

	cbCtx.Node = ""

	resp, err := e.buildResponse(f, step, snap, outcome)
	if err != nil {
		return nil, e.fail(rc, cbCtx, "", err)
	}

	resp.InvocationID = invocationID
	resp.Duration = time.Since(start)

	cbCtx.Response = resp
	if err := e.callbacks.ExecuteCallbacks(execCtx, CallbackAfterStep, cbCtx); err != nil {
		return nil, e.fail(rc, cbCtx, "", fmt.Errorf("engine: step %s: after_step callback: %w", step.ID, err))
	}

	e.metrics.ObserveExecution(f.Name, step.ID, string(resp.Status), resp.Duration)

	e.logStep(rc, resp)

	return resp, nil
}

// StopExecution cancels a running execution by invocation id.
func (e *Engine) StopExecution(invocationID string) error {
	e.executionsMu.Lock()
	cancel, exists := e.activeExecutions[invocationID]
	e.executionsMu.Unlock()

	if !exists {
		return fmt.Errorf("execution %s not found", invocationID)
	}

	cancel()
	return nil
}

func (e *Engine) acquire(ctx context.Context) (func(), error) {
	if e.sem == nil {
		return func() {}, nil
	}

	select {
	case e.sem <- struct{}{}:
		return func() { <-e.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runNode executes a single node with panic recovery and the configured
// timeout. A node that ignores its context is abandoned once the timeout
// fires; the execution fails regardless of what it writes afterwards.
func (e *Engine) runNode(rc *core.RunContext, node core.Node) error {
	ctx := rc.Context
	if e.config.NodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.NodeTimeout)
		defer cancel()
	}

	nodeRC := rc.WithContext(ctx)
	errCh := make(chan error, 1)

	go func() {
		var err error
		func() { // panic safety
			defer func() {
				if r := recover(); r != nil {
					err = panicError(r)
					rc.LogError("engine.node.panic", "node", node.Name(), "recover", r)
				}
			}()
			err = node.Execute(nodeRC)
		}()
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err == nil {
			return nil
		}

		var pe *panicErr
		if errors.As(err, &pe) {
			return core.WrapFatal(err, "engine", "runNode", "node "+node.Name())
		}

		if errors.Is(err, context.DeadlineExceeded) {
			return core.WrapTransient(err, "engine", "runNode", "node "+node.Name()+" timed out")
		}

		return fmt.Errorf("engine: node %s: %w", node.Name(), err)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return core.WrapTransient(ctx.Err(), "engine", "runNode", "node "+node.Name()+" timed out")
		}
		return core.WrapTransient(ctx.Err(), "engine", "runNode", "node "+node.Name()+" cancelled")
	}
}

func (e *Engine) buildResponse(f *flow.Flow, step *flow.Step, snap *core.Snapshot, outcome *core.Outcome) (*core.Response, error) {
	resp := &core.Response{
		OrderID:  snap.OrderID(),
		Flow:     f.Name,
		Step:     step.ID,
		Frontend: outcome.Frontend.Freeze(),
	}

	if outcome.Failed() {
		resp.Status = core.ResponseInvalid
		resp.NextStep = step.ID
		resp.Errors = outcome.Errors()
		return resp, nil
	}

	backend := outcome.Backend.Freeze()
	resp.Validated = snap.Current()
	resp.Backend = backend

	if rejected, reason := outcome.Rejected(); rejected {
		resp.Status = core.ResponseRejected
		resp.NextStep = step.ID
		resp.Reason = reason
		return resp, nil
	}

	if outcome.Completed() {
		resp.Status = core.ResponseCompleted
		return resp, nil
	}

	tr, err := f.Resolve(step, outcome.NextStep(), snap.Merged().Merge(backend))
	if err != nil {
		return nil, core.WrapFatal(err, "engine", "Execute", "step "+step.ID)
	}

	if tr.Completed {
		resp.Status = core.ResponseCompleted
		return resp, nil
	}

	resp.Status = core.ResponseAccepted
	resp.NextStep = tr.Next

	return resp, nil
}

func (e *Engine) fail(rc *core.RunContext, cbCtx *CallbackContext, node string, err error) error {
	args := []any{"flow", cbCtx.Flow, "step", cbCtx.Step, "node", node}

	// A FlowLogger already carries the order and invocation ids.
	if fl, ok := rc.Logger().(*logging.FlowLogger); ok && core.IsFatal(err) {
		var pe *panicErr
		if errors.As(err, &pe) {
			args = append(args, "panic_stack", string(pe.stack))
		}
		fl.ErrorWithStack(err, "engine.node.failed", args...)
	} else {
		if _, ok := rc.Logger().(*logging.FlowLogger); !ok {
			args = append(args, "invocation_id", rc.InvocationID, "order_id", rc.Snapshot.OrderID())
		}
		rc.LogError("engine.node.failed", append(args, "error", err.Error())...)
	}

	cbCtx.Err = err
	_ = e.callbacks.ExecuteCallbacks(rc.Context, CallbackOnError, cbCtx)

	return err
}

// executionLogger scopes the engine logger to one execution.
func (e *Engine) executionLogger(orderID, invocationID string) logging.Logger {
	if fl, ok := e.logger.(*logging.FlowLogger); ok {
		return fl.WithOrder(orderID, invocationID)
	}
	return e.logger
}

func (e *Engine) logStep(rc *core.RunContext, resp *core.Response) {
	if fl, ok := rc.Logger().(*logging.FlowLogger); ok {
		fl.WithContext("next_step", resp.NextStep).
			WithContext("errors", len(resp.Errors)).
			LogStepExecution(resp.Flow, resp.Step, string(resp.Status), resp.Duration, nil)
		return
	}

	rc.LogInfo(
		"engine.step.executed",
		"invocation_id", resp.InvocationID,
		"order_id", resp.OrderID,
		"flow", resp.Flow,
		"step", resp.Step,
		"status", string(resp.Status),
		"next_step", resp.NextStep,
		"errors", len(resp.Errors),
		"duration_ms", resp.Duration.Milliseconds(),
	)
}

// panicError converts a recovered panic value to an error carrying the stack.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }
