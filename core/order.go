package core

import (
	"context"
	"maps"
	"slices"
	"time"
)

// OrderStatus is the lifecycle state of an order record.
type OrderStatus string

const (
	OrderNew        OrderStatus = "new"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
	OrderRejected   OrderStatus = "rejected"
	OrderCancelled  OrderStatus = "cancelled"
)

// StepRecord is one entry of an order's submission history.
type StepRecord struct {
	Step         string         `json:"step"`
	NextStep     string         `json:"next_step,omitempty"`
	Status       ResponseStatus `json:"status"`
	InvocationID string         `json:"invocation_id"`
	At           time.Time      `json:"at"`
}

// Order is the persistent record driven through a flow. Data holds the
// submission data accumulated across all committed steps and is owned by the
// record; nothing outside the record may keep a reference to it. Stores hand
// out clones, and an Order value is not safe for concurrent mutation.
type Order struct {
	ID          string            `json:"id"`
	Flow        string            `json:"flow"`
	CurrentStep string            `json:"current_step"`
	Status      OrderStatus       `json:"status"`
	Data        map[string]any    `json:"data"`
	History     []StepRecord      `json:"history"`
	Version     uint64            `json:"version"`
	Created     time.Time         `json:"created"`
	Updated     time.Time         `json:"updated"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewOrder creates an order positioned at startStep holding a copy of data.
func NewOrder(id, flow, startStep string, data map[string]any) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:          id,
		Flow:        flow,
		CurrentStep: startStep,
		Status:      OrderNew,
		Data:        copyMap(data),
		History:     []StepRecord{},
		Created:     now,
		Updated:     now,
		Metadata:    map[string]string{},
	}
}

// IsOpen reports whether the order still accepts submissions.
func (o *Order) IsOpen() bool {
	return o.Status == OrderNew || o.Status == OrderInProgress
}

// Visited reports whether step was committed before.
func (o *Order) Visited(step string) bool {
	for _, r := range o.History {
		if r.Step == step {
			return true
		}
	}
	return false
}

// Accumulated returns an immutable copy of the accumulated submission data.
func (o *Order) Accumulated() Values { return NewValues(o.Data) }

// Commit applies a committable response: validated input first, then
// backend data on top, followed by history, position and status updates.
// Frontend data never reaches the record.
func (o *Order) Commit(resp *Response, at time.Time) {
	if o.Data == nil {
		o.Data = map[string]any{}
	}
	maps.Copy(o.Data, resp.Validated.Map())
	maps.Copy(o.Data, resp.Backend.Map())

	o.History = append(o.History, StepRecord{
		Step:         resp.Step,
		NextStep:     resp.NextStep,
		Status:       resp.Status,
		InvocationID: resp.InvocationID,
		At:           at,
	})

	switch resp.Status {
	case ResponseCompleted:
		o.Status = OrderCompleted
	case ResponseRejected:
		o.Status = OrderRejected
	default:
		o.Status = OrderInProgress
	}

	if resp.NextStep != "" {
		o.CurrentStep = resp.NextStep
	}
	o.Updated = at
}

// Clone returns a deep copy of the order safe for independent mutation.
func (o *Order) Clone() *Order {
	c := *o
	c.Data = copyMap(o.Data)
	c.History = slices.Clone(o.History)
	if c.History == nil {
		c.History = []StepRecord{}
	}
	c.Metadata = maps.Clone(o.Metadata)
	if c.Metadata == nil {
		c.Metadata = map[string]string{}
	}
	return &c
}

// OrderStore persists order records.
//
// Contract:
//   - Create fails with ErrOrderExists when the id is taken.
//   - Get fails with ErrOrderNotFound and returns a clone the caller owns.
//   - Update succeeds only when the stored version equals order.Version; it
//     then increments order.Version. Otherwise it fails with ErrVersionConflict.
//   - Stores never retain the pointers they are given.
type OrderStore interface {
	Create(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, order *Order) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Order, error)
}
