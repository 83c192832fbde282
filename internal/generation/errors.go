package generation

import (
	"errors"
	"fmt"
)

var (
	ErrNoImage     = errors.New("no image loaded")
	ErrInFlight    = errors.New("a generation request is already running")
	ErrEmptyMask   = errors.New("selection mask was empty; use the mask tool to mark part of the image generation area for inpainting, or switch to another image generation mode")
	ErrBackendBusy = errors.New("image generation in progress, try again later")
	ErrNoGenerator = errors.New("generator is required")
)

// PreconditionError means the request was rejected before any background
// work started. It is never retried.
type PreconditionError struct {
	Err error
}

func (e *PreconditionError) Error() string { return e.Err.Error() }

func (e *PreconditionError) Unwrap() error { return e.Err }

// TransientBackendError wraps a network or backend failure that may succeed
// on a later attempt.
type TransientBackendError struct {
	Op  string
	Err error
}

func (e *TransientBackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientBackendError) Unwrap() error { return e.Err }

// FatalGenerationError carries the background worker's failure back to the
// caller of Generate.
type FatalGenerationError struct {
	RequestID string
	Err       error
}

func (e *FatalGenerationError) Error() string {
	return fmt.Sprintf("generation %s failed: %v", e.RequestID, e.Err)
}

func (e *FatalGenerationError) Unwrap() error { return e.Err }

// IsPrecondition reports whether err rejected a request before dispatch.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

func precondition(err error) error {
	return &PreconditionError{Err: err}
}
