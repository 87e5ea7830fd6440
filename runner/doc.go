// Package runner drives orders through flows.
//
// The Runner couples the stateless engine with an order store. For every
// submission it loads the order, checks that the step may be submitted,
// builds an immutable snapshot, executes the step and commits committable
// responses back to the record. Invalid submissions persist nothing.
//
// Order records are updated with optimistic concurrency. When a concurrent
// writer wins, the whole submission is retried against the fresh record up
// to MaxConflictRetries times.
//
//	r := runner.New(eng, order.NewInMemoryStore())
//
//	o, err := r.Start(ctx, "checkout", nil)
//	if err != nil {
//	    return err
//	}
//
//	resp, err := r.Submit(ctx, o.ID, o.CurrentStep, map[string]any{"street": "Main St 1"})
package runner
