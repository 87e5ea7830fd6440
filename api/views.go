package api

import (
	"time"

	"github.com/hupe1980/stepflow/core"
)

type dataRequest struct {
	Data map[string]any `json:"data"`
}

type historyView struct {
	Step     string    `json:"step"`
	NextStep string    `json:"next_step,omitempty"`
	Status   string    `json:"status"`
	At       time.Time `json:"at"`
}

type orderView struct {
	ID          string        `json:"id"`
	Flow        string        `json:"flow"`
	CurrentStep string        `json:"current_step"`
	Status      string        `json:"status"`
	Version     uint64        `json:"version"`
	Created     time.Time     `json:"created"`
	Updated     time.Time     `json:"updated"`
	History     []historyView `json:"history"`
}

func newOrderView(o *core.Order) orderView {
	history := make([]historyView, 0, len(o.History))
	for _, h := range o.History {
		history = append(history, historyView{
			Step:     h.Step,
			NextStep: h.NextStep,
			Status:   string(h.Status),
			At:       h.At,
		})
	}

	return orderView{
		ID:          o.ID,
		Flow:        o.Flow,
		CurrentStep: o.CurrentStep,
		Status:      string(o.Status),
		Version:     o.Version,
		Created:     o.Created,
		Updated:     o.Updated,
		History:     history,
	}
}

// stepView is the client facing projection of a Response. It carries
// Frontend data only.
type stepView struct {
	OrderID  string            `json:"order_id"`
	Step     string            `json:"step"`
	NextStep string            `json:"next_step,omitempty"`
	Status   string            `json:"status"`
	Data     core.Values       `json:"data"`
	Errors   []core.FieldError `json:"errors,omitempty"`
	Reason   string            `json:"reason,omitempty"`
}

func newStepView(resp *core.Response) stepView {
	return stepView{
		OrderID:  resp.OrderID,
		Step:     resp.Step,
		NextStep: resp.NextStep,
		Status:   string(resp.Status),
		Data:     resp.Frontend,
		Errors:   resp.Errors,
		Reason:   resp.Reason,
	}
}
