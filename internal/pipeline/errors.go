package pipeline

import (
	"errors"
	"fmt"
)

// TransportError indicates the queue or an external network dependency was
// unavailable. Transport errors are retriable: they never consume a stage's
// retry budget productively, but they also never short-circuit to the
// failure handler on their own.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err as a TransportError for the given operation
func NewTransportError(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// IsTransportError reports whether err is or wraps a TransportError
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ValidationError indicates malformed data that will fail identically on
// every retry. It is terminal and routes straight to the failure handler.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// NewValidationError creates a terminal validation error
func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ConstraintError indicates a persistence constraint violation. Resubmitting
// identical data would fail identically, so it is terminal.
type ConstraintError struct {
	Err error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("persistence constraint violated: %v", e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// RetryBudgetError marks a retriable error whose attempt count reached the
// stage maximum. The wrapped error is the last failure observed.
type RetryBudgetError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *RetryBudgetError) Error() string {
	return fmt.Sprintf("retry budget exhausted for stage %s after %d attempts: %v", e.Stage, e.Attempts, e.Err)
}

func (e *RetryBudgetError) Unwrap() error { return e.Err }

// IsTerminal reports whether retrying err could change the outcome. Unknown
// error kinds are treated as retriable so transient faults without a typed
// wrapper still get the stage budget.
func IsTerminal(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return true
	}
	var re *RetryBudgetError
	return errors.As(err, &re)
}
