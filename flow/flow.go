// Package flow defines step graphs: the ordered steps of a multi-step
// process, the nodes each step runs and the routing between steps.
//
// Flows are plain data assembled in Go or loaded from YAML (see Load). They
// are immutable once registered with an engine.
package flow

import (
	"fmt"

	"github.com/hupe1980/stepflow/core"
)

// Step is one stage of a flow.
type Step struct {
	// ID uniquely identifies the step within its flow.
	ID string
	// Title is a human readable label.
	Title string
	// Nodes run in order for every submission to this step.
	Nodes []core.Node
	// Routes are evaluated in order after the nodes ran; the first match wins.
	Routes []Route
	// Next is the fallback successor when no route matches.
	Next string
	// Terminal marks the step whose acceptance completes the flow.
	Terminal bool
}

// Route sends an execution to To when When holds.
type Route struct {
	When Condition
	To   string
}

// Flow is a named graph of steps with a single entry point.
type Flow struct {
	Name        string
	Description string
	Start       string

	steps map[string]*Step
	order []string
}

// NewFlow creates an empty flow that starts at start.
func NewFlow(name, start string) *Flow {
	return &Flow{
		Name:  name,
		Start: start,
		steps: make(map[string]*Step),
	}
}

// AddStep appends a step. Duplicate or empty ids are rejected.
func (f *Flow) AddStep(step *Step) error {
	if step == nil || step.ID == "" {
		return fmt.Errorf("%w: %s: step id is empty", core.ErrInvalidFlow, f.Name)
	}

	if _, exists := f.steps[step.ID]; exists {
		return fmt.Errorf("%w: %s: duplicate step %q", core.ErrInvalidFlow, f.Name, step.ID)
	}

	f.steps[step.ID] = step
	f.order = append(f.order, step.ID)

	return nil
}

// MustAddStep is like AddStep but panics on error. It is intended for flows
// assembled in code at program start.
func (f *Flow) MustAddStep(step *Step) *Flow {
	if err := f.AddStep(step); err != nil {
		panic(err)
	}
	return f
}

// Step returns the step with the given id.
func (f *Flow) Step(id string) (*Step, bool) {
	s, ok := f.steps[id]
	return s, ok
}

// Steps returns all steps in declaration order.
func (f *Flow) Steps() []*Step {
	out := make([]*Step, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.steps[id])
	}
	return out
}

// Validate checks the graph: the start step and every transition target
// exist, terminal steps declare no successors, and an exit is reachable from
// the start step. An exit is a terminal step or a step without Next.
func (f *Flow) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("%w: flow name is empty", core.ErrInvalidFlow)
	}

	if _, ok := f.steps[f.Start]; !ok {
		return fmt.Errorf("%w: %s: start step %q not found", core.ErrInvalidFlow, f.Name, f.Start)
	}

	for _, id := range f.order {
		s := f.steps[id]

		if s.Terminal && (s.Next != "" || len(s.Routes) > 0) {
			return fmt.Errorf("%w: %s: terminal step %q declares successors", core.ErrInvalidFlow, f.Name, id)
		}

		if s.Next != "" {
			if _, ok := f.steps[s.Next]; !ok {
				return fmt.Errorf("%w: %s: step %q: next %q not found", core.ErrInvalidFlow, f.Name, id, s.Next)
			}
		}

		for i, r := range s.Routes {
			if r.When == nil {
				return fmt.Errorf("%w: %s: step %q: route %d has no condition", core.ErrInvalidFlow, f.Name, id, i)
			}
			if _, ok := f.steps[r.To]; !ok {
				return fmt.Errorf("%w: %s: step %q: route target %q not found", core.ErrInvalidFlow, f.Name, id, r.To)
			}
		}

		for i, n := range s.Nodes {
			if n == nil {
				return fmt.Errorf("%w: %s: step %q: node %d is nil", core.ErrInvalidFlow, f.Name, id, i)
			}
		}
	}

	if !f.exitReachable() {
		return fmt.Errorf("%w: %s: no exit step reachable from %q", core.ErrInvalidFlow, f.Name, f.Start)
	}

	return nil
}

func (f *Flow) exitReachable() bool {
	seen := map[string]bool{}
	queue := []string{f.Start}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if seen[id] {
			continue
		}
		seen[id] = true

		s := f.steps[id]
		if s.Terminal || s.Next == "" {
			return true
		}

		queue = append(queue, s.Next)
		for _, r := range s.Routes {
			queue = append(queue, r.To)
		}
	}

	return false
}

// Transition is the routing decision for an accepted submission.
type Transition struct {
	// Next is the step the order moves to. Empty when Completed is set.
	Next string
	// Completed reports that the flow ends with this submission.
	Completed bool
}

// Resolve picks the successor of step. Precedence: an explicit override
// (Outcome.Goto), then the first matching route, then Next. Terminal steps
// and steps without a successor complete the flow. data is evaluated by route
// conditions.
func (f *Flow) Resolve(step *Step, override string, data core.Values) (Transition, error) {
	if override != "" {
		if _, ok := f.steps[override]; !ok {
			return Transition{}, fmt.Errorf("%w: goto %q", core.ErrStepNotFound, override)
		}
		return Transition{Next: override}, nil
	}

	if step.Terminal {
		return Transition{Completed: true}, nil
	}

	for _, r := range step.Routes {
		if r.When(data) {
			return Transition{Next: r.To}, nil
		}
	}

	if step.Next == "" {
		return Transition{Completed: true}, nil
	}

	return Transition{Next: step.Next}, nil
}
