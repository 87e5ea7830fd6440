package core

// Node is a unit of per-step logic: validation, computation or display
// preparation. Nodes read the snapshot and write the outcome through the
// RunContext. Returning an error aborts the execution; validation failures
// are recorded with Outcome.Fail instead.
type Node interface {
	// Name returns the node identifier used in logs and metrics.
	Name() string
	// Execute runs the node logic.
	Execute(rc *RunContext) error
}

// NodeFunc adapts a function to the Node interface.
type NodeFunc struct {
	name string
	fn   func(rc *RunContext) error
}

// NewNodeFunc wraps fn as a named Node.
func NewNodeFunc(name string, fn func(rc *RunContext) error) *NodeFunc {
	return &NodeFunc{name: name, fn: fn}
}

// Name returns the node name.
func (n *NodeFunc) Name() string { return n.name }

// Execute calls the wrapped function.
func (n *NodeFunc) Execute(rc *RunContext) error { return n.fn(rc) }
