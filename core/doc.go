// Package core provides the foundational domain types, interfaces and execution
// contexts used by stepflow. It defines the core abstractions for:
//
//   - Values / Fields (immutable vs. owned mutable field mappings)
//   - Orders (persistent records accumulating submission data across steps)
//   - Snapshots and the ContextBuilder (read-only engine input, deep-copied at
//     the ownership boundary)
//   - Responses and Outcomes (engine output, partitioned into backend-destined
//     and frontend-destined data)
//   - Nodes and the RunContext (per-step logic and its execution scope)
//   - The StepExecutor, OrderRunner and OrderStore contracts
//   - The shared error taxonomy
//
// The package keeps implementation concerns (persistence backends, engine
// orchestration, transports) out of scope, exposing small interfaces so that
// custom backends can be plugged in.
package core
