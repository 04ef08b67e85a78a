package job

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrStatusConflict    = errors.New("job status changed concurrently")
)

// ValidationError reports a malformed submission. No job is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError is returned for lookups of an unknown job id.
// It matches ErrJobNotFound with errors.Is.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job not found: %d", e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrJobNotFound }

// TransitionError describes a rejected status change.
type TransitionError struct {
	ID   int64
	From JobStatus
	To   JobStatus
	Err  error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %d: %s -> %s: %v", e.ID, e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }
