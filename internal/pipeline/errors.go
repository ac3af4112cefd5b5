package pipeline

import (
	"errors"
	"fmt"
)

// PipelineError represents a failure of the fold itself. It is the only
// error SetupASTPipeline returns; misbehaving steps never produce one.
//
// Pipeline errors include:
//   - Nil feed: there is nothing to fold over
//   - Cancelled: the context ended between steps
//   - Fold panic: the runner itself panicked outside any step
type PipelineError struct {
	// Code identifies the error category.
	Code PipelineErrorCode

	// Message is a human-readable description.
	Message string

	// Cause is the original error, if any.
	Cause error

	// Stack is the goroutine stack captured where the failure surfaced.
	Stack string
}

// PipelineErrorCode categorizes pipeline errors.
type PipelineErrorCode string

const (
	// ErrCodeNilFeed indicates the input feed was nil.
	ErrCodeNilFeed PipelineErrorCode = "NIL_FEED"

	// ErrCodeCancelled indicates the context was done before a step ran.
	ErrCodeCancelled PipelineErrorCode = "CANCELLED"

	// ErrCodeFoldPanic indicates a panic in the fold outside step isolation.
	ErrCodeFoldPanic PipelineErrorCode = "FOLD_PANIC"
)

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the original cause.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// IsPipelineError returns true if the error is a PipelineError.
// Uses errors.As to handle wrapped errors.
func IsPipelineError(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe)
}

// IsCancelled returns true if the pipeline stopped on context cancellation.
func IsCancelled(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeCancelled
	}
	return false
}

// StepError describes one isolated step failure. It is recorded on the
// step's FuncInterface and logged; the fold continues.
type StepError struct {
	// Index is the step's position in the composition.
	Index int

	// FName is the enhancement name.
	FName string

	// Cause is what went wrong.
	Cause error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %d failed: %s: %v", e.Index, e.FName, e.Cause)
}

// Unwrap returns the original cause.
func (e *StepError) Unwrap() error {
	return e.Cause
}

// IsStepError returns true if the error is a StepError.
func IsStepError(err error) bool {
	var se *StepError
	return errors.As(err, &se)
}

// PanicError wraps a value recovered from a panicking step.
type PanicError struct {
	Value any
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
