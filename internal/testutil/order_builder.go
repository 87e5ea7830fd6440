package testutil

import (
	"time"

	"github.com/hupe1980/stepflow/core"
)

// OrderBuilder helps construct orders with fluent chaining for tests.
// Example:
//
//	o := NewOrderBuilder("o-1", "checkout").At("payment").Data("email", "a@b.c").Build()
type OrderBuilder struct {
	id      string
	flow    string
	step    string
	status  core.OrderStatus
	version uint64
	data    map[string]any
	visited []string
}

// NewOrderBuilder creates a builder for an order of flow positioned at "start".
func NewOrderBuilder(id, flow string) *OrderBuilder {
	return &OrderBuilder{id: id, flow: flow, step: "start", data: map[string]any{}}
}

// At sets the current step (chainable).
func (b *OrderBuilder) At(step string) *OrderBuilder { b.step = step; return b }

// Status sets the order status (chainable).
func (b *OrderBuilder) Status(s core.OrderStatus) *OrderBuilder { b.status = s; return b }

// Version sets the stored version (chainable).
func (b *OrderBuilder) Version(v uint64) *OrderBuilder { b.version = v; return b }

// Data sets an accumulated data field (chainable).
func (b *OrderBuilder) Data(key string, val any) *OrderBuilder {
	b.data[key] = val
	return b
}

// Visited records accepted history entries for the given steps (chainable).
func (b *OrderBuilder) Visited(steps ...string) *OrderBuilder {
	b.visited = append(b.visited, steps...)
	return b
}

// Build returns the order.
func (b *OrderBuilder) Build() *core.Order {
	o := core.NewOrder(b.id, b.flow, b.step, b.data)
	if b.status != "" {
		o.Status = b.status
	}
	o.Version = b.version
	for _, s := range b.visited {
		o.History = append(o.History, core.StepRecord{Step: s, Status: core.ResponseAccepted, At: time.Now().UTC()})
	}
	return o
}
