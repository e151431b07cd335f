// Package stegamodel loads watermark models and runs embed/extract inference.
package stegamodel

import (
	"errors"
	"fmt"
)

// ModelError represents a failure in a model operation.
// It records the operation, the model directory, and the underlying cause.
type ModelError struct {
	Op   string // Operation that failed (e.g., "load", "embed", "extract")
	Path string // Model directory
	Err  error  // Wrapped underlying error
}

// Error implements the error interface.
func (e *ModelError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("stegamodel %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("stegamodel %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap allows errors.Is and errors.As to see the cause.
func (e *ModelError) Unwrap() error {
	return e.Err
}

// Sentinel errors for common failure conditions.
var (
	// ErrModelNotFound indicates the model directory does not exist or holds no SavedModel.
	ErrModelNotFound = errors.New("model not found")

	// ErrModelLoadFailed indicates the model exists but could not be loaded by the backend.
	ErrModelLoadFailed = errors.New("failed to load model")

	// ErrSignatureMissing indicates the model does not expose the slots an operation needs.
	ErrSignatureMissing = errors.New("model signature missing required slots")

	// ErrInferenceFailed indicates the backend rejected or failed a prediction.
	ErrInferenceFailed = errors.New("inference failed")

	// ErrBadOutput indicates the backend returned an output of unexpected shape.
	ErrBadOutput = errors.New("unexpected model output")

	// ErrSessionClosed indicates use of a session after Close.
	ErrSessionClosed = errors.New("session closed")
)

func wrapErr(op, path string, sentinel error, cause error) error {
	if cause == nil {
		return &ModelError{Op: op, Path: path, Err: sentinel}
	}
	return &ModelError{Op: op, Path: path, Err: fmt.Errorf("%w: %v", sentinel, cause)}
}
