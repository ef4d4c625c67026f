package detection

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrClosed is returned by Detect after Close.
	ErrClosed = errors.New("detection: adapter closed")

	// ErrModelNotFound is returned when the model file does not exist.
	ErrModelNotFound = errors.New("detection: model file not found")
)

// InitError reports an adapter that could not be created. It is fatal to
// its own stream only.
type InitError struct {
	Stream string
	Err    error
}

// Error implements the error interface.
func (e *InitError) Error() string {
	return fmt.Sprintf("detection [%s]: init: %v", e.Stream, e.Err)
}

// Unwrap returns the underlying error.
func (e *InitError) Unwrap() error {
	return e.Err
}

// InferenceError reports a failed Detect call. It is transient: the cycle is
// skipped and the stream keeps running.
type InferenceError struct {
	Stream string
	Err    error
}

// Error implements the error interface.
func (e *InferenceError) Error() string {
	return fmt.Sprintf("detection [%s]: inference: %v", e.Stream, e.Err)
}

// Unwrap returns the underlying error.
func (e *InferenceError) Unwrap() error {
	return e.Err
}

// WrapInit wraps err as an InitError for stream. Nil stays nil.
func WrapInit(stream string, err error) error {
	if err == nil {
		return nil
	}
	return &InitError{Stream: stream, Err: err}
}

// WrapInference wraps err as an InferenceError for stream. Nil stays nil.
func WrapInference(stream string, err error) error {
	if err == nil {
		return nil
	}
	var ie *InferenceError
	if errors.As(err, &ie) {
		return err
	}
	return &InferenceError{Stream: stream, Err: err}
}

// IsInitError reports whether err is an InitError.
func IsInitError(err error) bool {
	var ie *InitError
	return errors.As(err, &ie)
}
