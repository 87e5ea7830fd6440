package core

import (
	"fmt"
	"sync"
	"time"
)

// ResponseStatus is the result category of one step execution.
type ResponseStatus string

const (
	// ResponseAccepted means the input passed validation and the order advances.
	ResponseAccepted ResponseStatus = "accepted"
	// ResponseInvalid means validation failed; nothing may be persisted.
	ResponseInvalid ResponseStatus = "invalid"
	// ResponseCompleted means the step was accepted and the flow reached its end.
	ResponseCompleted ResponseStatus = "completed"
	// ResponseRejected means a business rule ended the order.
	ResponseRejected ResponseStatus = "rejected"
)

// FieldError reports a validation failure for a single input field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Field, e.Code, e.Message)
}

// Response is the engine's output for one step execution.
//
// Backend carries data destined for the persistent order record; Frontend
// carries data destined for display. They are separate immutable mappings and
// transports must only ever expose Frontend to clients.
type Response struct {
	InvocationID string         `json:"invocation_id"`
	OrderID      string         `json:"order_id"`
	Flow         string         `json:"flow"`
	Step         string         `json:"step"`
	NextStep     string         `json:"next_step,omitempty"`
	Status       ResponseStatus `json:"status"`
	Validated    Values         `json:"validated"`
	Backend      Values         `json:"backend"`
	Frontend     Values         `json:"frontend"`
	Errors       []FieldError   `json:"errors,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	Duration     time.Duration  `json:"duration"`
}

// Valid reports whether the submitted input was accepted.
func (r *Response) Valid() bool {
	return r.Status == ResponseAccepted || r.Status == ResponseCompleted
}

// Committable reports whether the response must be applied to the order record.
// Rejections are committed so the record captures the rejection.
func (r *Response) Committable() bool {
	return r.Status != ResponseInvalid
}

// Outcome collects everything nodes produce while a step executes. It is
// owned by the engine for the duration of one execution and frozen into a
// Response afterwards. Create it with NewOutcome; the zero value has no
// Backend or Frontend container.
type Outcome struct {
	// Backend receives data destined for persistence.
	Backend *Fields
	// Frontend receives data destined for display.
	Frontend *Fields

	mu       sync.Mutex
	errors   []FieldError
	next     string
	complete bool
	rejected bool
	reason   string
}

// NewOutcome creates an empty Outcome with distinct backend and frontend containers.
func NewOutcome() *Outcome {
	return &Outcome{Backend: NewFields(), Frontend: NewFields()}
}

// Fail records a validation failure.
func (o *Outcome) Fail(field, code, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, FieldError{Field: field, Code: code, Message: message})
}

// Failed reports whether any validation failure was recorded.
func (o *Outcome) Failed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.errors) > 0
}

// Errors returns a copy of the recorded validation failures.
func (o *Outcome) Errors() []FieldError {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.errors) == 0 {
		return nil
	}
	out := make([]FieldError, len(o.errors))
	copy(out, o.errors)
	return out
}

// Goto overrides routing with an explicit next step.
func (o *Outcome) Goto(step string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next = step
}

// NextStep returns the explicit next step set via Goto, if any.
func (o *Outcome) NextStep() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.next
}

// Complete marks the flow as finished after this step.
func (o *Outcome) Complete() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.complete = true
}

// Completed reports whether Complete was called.
func (o *Outcome) Completed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.complete
}

// Reject ends the order for a business reason.
func (o *Outcome) Reject(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected = true
	o.reason = reason
}

// Rejected reports whether Reject was called and with which reason.
func (o *Outcome) Rejected() (bool, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rejected, o.reason
}
