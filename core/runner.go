package core

import "context"

// OrderRunner defines the order lifecycle contract on top of a StepExecutor
// and an OrderStore. It provides:
//   - Order creation bound to a registered flow via Start
//   - Step submission with commit of accepted or rejected responses via Submit
//   - Lookup, listing and cancellation of orders
//
// Semantics & Guarantees:
//   - Step Access: only the order's current step (and, when enabled, already
//     committed steps) may be submitted.
//   - Atomic Commit: a response is committed with a single conditional store
//     update; concurrent submissions for one order never both commit.
//   - Invalid Responses: submissions failing validation leave the order unchanged.
//   - Closed Orders: completed, rejected or cancelled orders refuse submissions
//     with ErrOrderClosed.
type OrderRunner interface {
	// Start creates a new order of flowName positioned at the flow's start step.
	Start(ctx context.Context, flowName string, initial map[string]any) (*Order, error)

	// Submit executes stepID for the order with input and commits the result.
	Submit(ctx context.Context, orderID, stepID string, input map[string]any) (*Response, error)

	// Get returns the order with id.
	Get(ctx context.Context, id string) (*Order, error)

	// Cancel closes an open order.
	Cancel(ctx context.Context, id string) (*Order, error)

	// List returns all orders.
	List(ctx context.Context) ([]*Order, error)
}
