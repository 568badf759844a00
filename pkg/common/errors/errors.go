package errors

import (
	"errors"
	"fmt"
)

// Common error types used across the gostream library

var (
	// ErrClosed indicates that an operation was attempted on a closed stream
	ErrClosed = errors.New("stream is closed")

	// ErrErrored indicates that an operation was attempted on an errored stream
	ErrErrored = errors.New("stream is errored")

	// ErrReleased indicates that an operation was attempted through a released lease
	ErrReleased = errors.New("lease has been released")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ValidationError reports a bad strategy or constructor argument. It is
// always returned synchronously from the call site that supplied the value.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string
}

// NewValidationError creates a ValidationError for the given module and field.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{Module: module, Field: field, Value: value, Reason: reason}
}

// WithHint attaches a remediation hint and returns the error for chaining.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Is matches ErrInvalidConfiguration, letting callers test for any rejected
// argument without naming the concrete type.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// LockError reports an operation against a stream whose lock state forbids
// it: acquiring a lease on a locked stream, or teeing a locked readable.
// It rejects only the offending call; stream state is unchanged.
type LockError struct {
	Op   string // the rejected operation, e.g. "GetReader"
	Kind string // the stream kind, "readable" or "writable"
}

func (e *LockError) Error() string {
	return fmt.Sprintf("%s: %s stream is already locked", e.Op, e.Kind)
}

// StateError reports an operation that is invalid for the stream's current
// state, such as enqueuing after close. It rejects only the offending call.
type StateError struct {
	Op    string
	State string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: invalid in state %s", e.Op, e.State)
}

// AdapterError wraps a failure reported by user-supplied source, sink, or
// transformer callbacks. An AdapterError always forces the owning stream into
// its terminal failure state.
type AdapterError struct {
	Op  string // the adapter callback that failed, e.g. "pull"
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %s failed: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// PropagatedError replays a stored failure reason to a caller that operated
// on an already-errored stream. Unwrap exposes the original reason so
// errors.Is continues to match it.
type PropagatedError struct {
	Reason error
}

func (e *PropagatedError) Error() string {
	return fmt.Sprintf("stream errored: %v", e.Reason)
}

func (e *PropagatedError) Unwrap() error {
	return e.Reason
}

// Is matches ErrErrored, letting callers test for any replayed terminal
// failure without inspecting the stored reason.
func (e *PropagatedError) Is(target error) bool {
	return target == ErrErrored
}

// IsTerminal returns true if the error marks (or replays) a terminal stream
// failure rather than a locally rejected call.
func IsTerminal(err error) bool {
	var ae *AdapterError
	var pe *PropagatedError
	return errors.As(err, &ae) || errors.As(err, &pe)
}

// IsLocal returns true if the error rejected a single call without changing
// stream state.
func IsLocal(err error) bool {
	var ve *ValidationError
	var le *LockError
	var se *StateError
	return errors.As(err, &ve) || errors.As(err, &le) || errors.As(err, &se)
}
