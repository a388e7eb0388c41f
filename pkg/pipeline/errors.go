package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors for lifecycle violations.
var (
	// ErrNotReady is returned by Start while no model is loaded.
	ErrNotReady = errors.New("pipeline: model not ready")

	// ErrInvalidTransition is returned when an operation is not allowed in the current state.
	ErrInvalidTransition = errors.New("pipeline: invalid state transition")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("pipeline: scheduler closed")
)

// ModelLoadError reports a failed detector load.
type ModelLoadError struct {
	Err error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("pipeline: model load failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// CaptureSourceError reports a capture source that failed to open or read.
type CaptureSourceError struct {
	Op  string
	Err error
}

func (e *CaptureSourceError) Error() string {
	return fmt.Sprintf("pipeline: capture %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *CaptureSourceError) Unwrap() error {
	return e.Err
}

func transitionError(op string, from State) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, from)
}
