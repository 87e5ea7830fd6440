// Package engine implements the step execution layer of stepflow.
//
// The Engine runs one step of a registered flow against an immutable
// snapshot of an order and returns a Response. It holds no order state and
// performs no persistence; the runner package couples it with an order store.
//
// # Core Responsibilities
//
// Flow Management:
//   - Thread-safe flow registry with name-based lookup
//   - Validation of flow definitions at registration time
//
// Step Execution:
//   - Sequential node execution with fail-fast validation
//   - Per-node timeouts and panic recovery
//   - Per-execution model call limits
//   - Bounded concurrency with context-aware waiting
//
// Routing:
//   - Explicit Goto overrides, conditional routes and default successors
//   - Completion on terminal steps or steps without successors
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────┐
//	│                 Runner / API Layer                      │
//	├─────────────────────────────────────────────────────────┤
//	│                  Engine Interface                       │
//	│  ┌─────────────┐ ┌─────────────┐ ┌─────────────────┐   │
//	│  │  Register   │ │   Execute   │ │ StopExecution   │   │
//	│  └─────────────┘ └─────────────┘ └─────────────────┘   │
//	├─────────────────────────────────────────────────────────┤
//	│                  Execution Layer                        │
//	│  ┌─────────────┐ ┌─────────────┐ ┌─────────────────┐   │
//	│  │    Nodes    │ │  Callbacks  │ │  Concurrency    │   │
//	│  │             │ │  Manager    │ │   Control       │   │
//	│  └─────────────┘ └─────────────┘ └─────────────────┘   │
//	├─────────────────────────────────────────────────────────┤
//	│          Snapshot (read-only) → Outcome (owned)         │
//	└─────────────────────────────────────────────────────────┘
//
// # Data Ownership
//
// The snapshot handed to Execute is immutable and deep-copied from the order
// record when it was built. Nodes write into a fresh Outcome whose backend
// and frontend containers are distinct. The Response carries frozen copies
// of both, so nothing a caller receives aliases engine or order memory.
//
// # Callbacks
//
// The CallbackManager runs hooks at five lifecycle points: before_step,
// after_step, before_node, after_node and on_error. A hook returning an
// error aborts the execution; errors from on_error hooks are ignored.
//
//	callbacks := engine.NewCallbackManager()
//	callbacks.RegisterCallback(engine.NewLoggingCallback(engine.CallbackAfterStep, logger))
//
//	eng := engine.New(func(o *engine.Options) {
//	    o.Callbacks = callbacks
//	})
//
// # Usage
//
//	eng := engine.New(func(o *engine.Options) {
//	    o.Logger = logger
//	    o.Metrics = engineMetrics
//	})
//
//	if err := eng.Register(checkout); err != nil {
//	    return err
//	}
//
//	snap, err := core.NewContextBuilder().Build(order, "address", input)
//	if err != nil {
//	    return err
//	}
//
//	resp, err := eng.Execute(ctx, "address", snap)
//	if err != nil {
//	    return err
//	}
//
//	if !resp.Valid() {
//	    // render resp.Errors and resp.Frontend
//	}
package engine
