package pipeline

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned before any external call when the upload is unusable.
var ErrInvalidInput = errors.New("invalid input")

// ErrNoModels is returned when the sequencer has nothing to try.
var ErrNoModels = errors.New("no extraction models configured")

// PersistenceError wraps a failed expense insert. Message is the store's
// own error text, which the HTTP layer returns to the caller.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist expense: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Message is the underlying store error text.
func (e *PersistenceError) Message() string {
	if e.Err == nil {
		return "failed to save expense"
	}
	return e.Err.Error()
}
