package core

import "context"

// StepExecutor runs the nodes of one flow step against a snapshot and
// assembles the response.
//
// A concrete implementation is responsible for:
//   - Resolving the flow and step named by the snapshot
//   - Executing the step's nodes in order, stopping at the first failure
//   - Routing accepted submissions to the next step
//
// Implementations SHOULD:
//   - Never mutate the snapshot or retain references into it
//   - Propagate context cancellation to running nodes
//   - Classify failures (invalid, transient, fatal) so callers can react
type StepExecutor interface {
	// Execute runs stepID against snap. An empty stepID executes snap's step.
	// Validation failures are reported in the response, not as an error.
	Execute(ctx context.Context, stepID string, snap *Snapshot) (*Response, error)

	// StopExecution cancels an in-flight execution by its invocation id.
	StopExecution(invocationID string) error
}
