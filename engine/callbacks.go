package engine

import (
	"context"
	"sync"

	"github.com/hupe1980/stepflow/core"
	"github.com/hupe1980/stepflow/logging"
)

// CallbackType defines the specific lifecycle points where callbacks can be executed.
//
// Callbacks provide a flexible mechanism for hooking into the engine's execution
// pipeline without modifying core logic. Each type represents a specific point
// in the execution lifecycle where custom logic can be injected.
//
// Available callback types:
//   - BeforeStep/AfterStep: Around a complete step execution
//   - BeforeNode/AfterNode: Around individual node executions
//   - OnError: When a node or callback fails
//
// Callbacks are executed synchronously and can influence execution flow
// by returning errors that terminate the operation.
type CallbackType string

const (
	// CallbackBeforeStep is triggered before the first node of a step runs.
	// Use for admission checks or instrumentation.
	CallbackBeforeStep CallbackType = "before_step"

	// CallbackAfterStep is triggered once the response is built and before it
	// is returned. Use for auditing or validating backend output.
	CallbackAfterStep CallbackType = "after_step"

	// CallbackBeforeNode is triggered before each node executes.
	CallbackBeforeNode CallbackType = "before_node"

	// CallbackAfterNode is triggered after each node executed successfully.
	CallbackAfterNode CallbackType = "after_node"

	// CallbackOnError is triggered when a node or callback fails. Errors
	// returned by OnError callbacks are ignored.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext provides context information for callback execution.
//
// Snapshot is read-only by construction. Outcome is the live output of the
// running execution; callbacks may inspect it but should leave writes to
// nodes. Response is set for AfterStep only, Node for node level callbacks
// and Err for OnError.
type CallbackContext struct {
	InvocationID string
	Flow         string
	Step         string
	Node         string

	Snapshot *core.Snapshot
	Outcome  *core.Outcome
	Response *core.Response
	Err      error

	// CallbackType indicates which callback type triggered this execution.
	CallbackType CallbackType

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback defines the interface for execution lifecycle hooks.
//
// Implementations should be fast: callbacks run synchronously and block the
// execution they observe.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	// Returning an error will terminate the associated operation.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	audit := NewFunctionCallback(
//	    CallbackAfterStep,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        log.Printf("step %s -> %s", cc.Step, cc.Response.Status)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager orchestrates callback execution throughout the engine lifecycle.
//
// Callbacks are executed in registration order, and any callback returning
// an error will terminate execution and prevent subsequent callbacks from
// running. Registration and execution are safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates a new callback manager instance.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback to the manager for its type.
//
// Example:
//
//	manager := NewCallbackManager()
//	manager.RegisterCallback(auditCallback)
//	manager.RegisterCallback(NewLoggingCallback(CallbackOnError, logger))
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks executes all registered callbacks for the specified type.
// A nil manager executes nothing.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}

	cm.mu.RLock()
	callbacks := cm.callbacks[callbackType]
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType

	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallback writes lifecycle events to a logging.Logger.
//
// Example:
//
//	callback := NewLoggingCallback(CallbackAfterNode, logger)
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the lifecycle event with its identifiers.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	args := []any{
		"callback", string(c.callbackType),
		"invocation_id", callbackCtx.InvocationID,
		"flow", callbackCtx.Flow,
		"step", callbackCtx.Step,
	}

	if callbackCtx.Node != "" {
		args = append(args, "node", callbackCtx.Node)
	}

	if callbackCtx.Response != nil {
		args = append(args, "status", string(callbackCtx.Response.Status))
	}

	if callbackCtx.Err != nil {
		args = append(args, "error", callbackCtx.Err.Error())
		c.logger.Warn("engine.callback", args...)
		return nil
	}

	c.logger.Debug("engine.callback", args...)
	return nil
}

// BackendValidationCallback validates the backend output of a response
// before it leaves the engine.
//
// This enforces business rules and data integrity constraints on data that
// is about to be persisted. The validator only sees committable responses.
//
// Example:
//
//	validator := func(backend core.Values) error {
//	    if backend.Has("password") {
//	        return errors.New("password must not be persisted")
//	    }
//	    return nil
//	}
//	callback := NewBackendValidationCallback(validator)
type BackendValidationCallback struct {
	validator func(backend core.Values) error
}

// NewBackendValidationCallback creates a new backend validation callback.
func NewBackendValidationCallback(validator func(backend core.Values) error) *BackendValidationCallback {
	return &BackendValidationCallback{
		validator: validator,
	}
}

// Type returns the callback type (always CallbackAfterStep).
func (c *BackendValidationCallback) Type() CallbackType {
	return CallbackAfterStep
}

// Execute validates the backend output of committable responses.
func (c *BackendValidationCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	resp := callbackCtx.Response
	if c.validator == nil || resp == nil || !resp.Committable() {
		return nil
	}
	return c.validator(resp.Backend)
}
