package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig reports chunking parameters that could never
	// terminate, such as overlap >= size.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrArityMismatch reports parallel upsert arguments of unequal length.
	ErrArityMismatch = errors.New("arity mismatch")

	// ErrMalformedEvent reports a trigger payload missing required fields.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrWaitTimeout reports that waiting for a run's result exceeded the
	// caller's budget. The run itself may still complete.
	ErrWaitTimeout = errors.New("timed out waiting for run result")
)

// DependencyError wraps a failure from an external collaborator (embedding
// service, vector store, or answer generator) with the operation that failed.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s failed: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// Dependency wraps err as a DependencyError unless it is nil.
func Dependency(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DependencyError{Op: op, Err: err}
}
