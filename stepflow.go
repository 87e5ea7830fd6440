// Package stepflow provides a high-level façade over the flow engine, the
// order runner and the HTTP transport, enabling rapid construction of
// multi-step order flows. Most applications interact with this package by:
//  1. Creating a Stepflow via New() (optionally overriding the in‑memory order store)
//  2. Registering flows built in code (RegisterFlow) or loaded from YAML (LoadFlows)
//  3. Driving orders through their steps (Start, Submit) or serving Handler()
//
// The façade delegates execution to engine.Engine and persistence to
// runner.Runner while keeping setup and usage ergonomics concise. All defaults
// are safe for local development and testing; production deployments
// typically supply a durable order store and a structured logger.
package stepflow

import (
	"context"
	"net/http"

	"github.com/hupe1980/stepflow/api"
	"github.com/hupe1980/stepflow/core"
	"github.com/hupe1980/stepflow/engine"
	"github.com/hupe1980/stepflow/flow"
	"github.com/hupe1980/stepflow/logging"
	"github.com/hupe1980/stepflow/metric"
	"github.com/hupe1980/stepflow/model"
	"github.com/hupe1980/stepflow/order"
	"github.com/hupe1980/stepflow/runner"
)

// Options configures the Stepflow instance.
type Options struct {
	// Engine configuration (concurrency, node timeouts, model call limits)
	EngineConfig engine.Config

	// MaxConflictRetries bounds retries after optimistic concurrency conflicts.
	MaxConflictRetries int

	// AllowRevisit permits resubmitting previously committed steps.
	AllowRevisit bool

	// OrderStore persists orders (defaults to an in-memory implementation).
	OrderStore core.OrderStore

	// Callbacks hooks into step execution.
	Callbacks *engine.CallbackManager

	// Metrics enables Prometheus metrics when set.
	Metrics *metric.Registry

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Stepflow is the high-level façade aggregating the engine and the runner.
type Stepflow struct {
	opts    Options
	engine  *engine.Engine
	runner  *runner.Runner
	metrics http.Handler
}

// New creates a new Stepflow instance with optional overrides.
func New(optFns ...func(o *Options)) (*Stepflow, error) {
	opts := Options{
		EngineConfig:       engine.DefaultConfig,
		MaxConflictRetries: 3,
		OrderStore:         order.NewInMemoryStore(),
		Logger:             logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	engineMetrics, err := metric.NewEngineMetrics(opts.Metrics)
	if err != nil {
		return nil, err
	}

	runnerMetrics, err := metric.NewRunnerMetrics(opts.Metrics)
	if err != nil {
		return nil, err
	}

	e := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Logger = opts.Logger
		o.Metrics = engineMetrics
		o.Callbacks = opts.Callbacks
	})

	r := runner.New(e, opts.OrderStore, func(o *runner.Options) {
		o.MaxConflictRetries = opts.MaxConflictRetries
		o.AllowRevisit = opts.AllowRevisit
		o.Metrics = runnerMetrics
		o.Logger = opts.Logger
	})

	s := &Stepflow{opts: opts, engine: e, runner: r}
	if opts.Metrics != nil {
		s.metrics = opts.Metrics.Handler()
	}

	return s, nil
}

// RegisterFlow validates and registers a flow.
func (s *Stepflow) RegisterFlow(f *flow.Flow) error { return s.engine.Register(f) }

// LoadFlows loads every YAML flow definition in dir and registers it.
// models resolves the model names referenced by model nodes.
func (s *Stepflow) LoadFlows(dir string, models map[string]model.Model) ([]string, error) {
	flows, err := flow.LoadDir(dir, func(o *flow.LoaderOptions) {
		o.Models = models
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(flows))
	for _, f := range flows {
		if err := s.engine.Register(f); err != nil {
			return nil, err
		}
		names = append(names, f.Name)
	}

	return names, nil
}

// Flows returns the registered flow names.
func (s *Stepflow) Flows() []string { return s.engine.Flows() }

// Start creates an order of the named flow.
func (s *Stepflow) Start(ctx context.Context, flowName string, initial map[string]any) (*core.Order, error) {
	return s.runner.Start(ctx, flowName, initial)
}

// Submit executes a step of an order and commits the result.
func (s *Stepflow) Submit(ctx context.Context, orderID, stepID string, input map[string]any) (*core.Response, error) {
	return s.runner.Submit(ctx, orderID, stepID, input)
}

// Get returns an order.
func (s *Stepflow) Get(ctx context.Context, orderID string) (*core.Order, error) {
	return s.runner.Get(ctx, orderID)
}

// Cancel cancels an open order.
func (s *Stepflow) Cancel(ctx context.Context, orderID string) (*core.Order, error) {
	return s.runner.Cancel(ctx, orderID)
}

// List returns all orders.
func (s *Stepflow) List(ctx context.Context) ([]*core.Order, error) {
	return s.runner.List(ctx)
}

// Engine exposes the underlying engine.
func (s *Stepflow) Engine() *engine.Engine { return s.engine }

// Runner exposes the underlying runner.
func (s *Stepflow) Runner() *runner.Runner { return s.runner }

// Handler returns the HTTP API. The metrics route is mounted when metrics
// are enabled.
func (s *Stepflow) Handler(optFns ...func(o *api.Options)) http.Handler {
	return api.NewRouter(s.runner, s.engine, append([]func(o *api.Options){
		func(o *api.Options) {
			o.Logger = s.opts.Logger
			o.Metrics = s.metrics
		},
	}, optFns...)...)
}
