package core

import (
	"errors"
	"fmt"
)

// Standard error variables shared by the engine, runner and stores.
var (
	// ErrUnsupportedModification is returned by every mutating operation on an
	// immutable mapping (Values, Snapshot data).
	ErrUnsupportedModification = errors.New("unsupported modification of immutable data")

	ErrInvalidArgument = errors.New("invalid argument")

	ErrOrderNotFound   = errors.New("order not found")
	ErrOrderExists     = errors.New("order already exists")
	ErrOrderClosed     = errors.New("order is closed")
	ErrVersionConflict = errors.New("order version conflict")

	ErrFlowNotFound   = errors.New("flow not found")
	ErrStepNotFound   = errors.New("step not found")
	ErrStepNotAllowed = errors.New("step not allowed for order")
	ErrInvalidFlow    = errors.New("invalid flow definition")

	ErrModelLimit = errors.New("model call limit exceeded")
)

// ErrorClass represents the classification of errors for handling purposes.
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried.
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or definitions.
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors.
	ErrorFatal
)

// String returns the string representation of ErrorClass.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an error with its classification and origin.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	msg := ce.Message
	if msg == "" && ce.Err != nil {
		msg = ce.Err.Error()
	} else if ce.Err != nil {
		msg = msg + ": " + ce.Err.Error()
	}

	if ce.Component == "" {
		return msg
	}

	return fmt.Sprintf("%s.%s: %s", ce.Component, ce.Operation, msg)
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error { return ce.Err }

func wrap(class ErrorClass, err error, component, operation, message string) error {
	return &ClassifiedError{Class: class, Err: err, Message: message, Component: component, Operation: operation}
}

// WrapInvalid classifies err as caused by invalid input.
func WrapInvalid(err error, component, operation, message string) error {
	return wrap(ErrorInvalid, err, component, operation, message)
}

// WrapTransient classifies err as retryable.
func WrapTransient(err error, component, operation, message string) error {
	return wrap(ErrorTransient, err, component, operation, message)
}

// WrapFatal classifies err as unrecoverable.
func WrapFatal(err error, component, operation, message string) error {
	return wrap(ErrorFatal, err, component, operation, message)
}

func classOf(err error) (ErrorClass, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	return 0, false
}

// IsInvalid reports whether err was caused by invalid input.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	if c, ok := classOf(err); ok {
		return c == ErrorInvalid
	}
	return errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrInvalidFlow)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if c, ok := classOf(err); ok {
		return c == ErrorTransient
	}
	return errors.Is(err, ErrVersionConflict)
}

// IsFatal reports whether err is unrecoverable.
func IsFatal(err error) bool {
	if c, ok := classOf(err); ok {
		return c == ErrorFatal
	}
	return false
}

// ModificationError describes a rejected write against immutable data.
type ModificationError struct {
	Op  string
	Key string
}

// Error implements the error interface.
func (e *ModificationError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Op, e.Key, ErrUnsupportedModification)
}

// Unwrap returns ErrUnsupportedModification.
func (e *ModificationError) Unwrap() error { return ErrUnsupportedModification }
