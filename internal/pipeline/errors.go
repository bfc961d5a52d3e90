package pipeline

import (
	"errors"
	"fmt"
)

var ErrTargetNotFound = errors.New("sync target not found")

// ConnectionError wraps a failed call to the source database or the
// destination document.
type ConnectionError struct {
	Collaborator string
	Op           string
	Err          error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Collaborator, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func sourceError(op string, err error) error {
	return &ConnectionError{Collaborator: "source", Op: op, Err: err}
}

func destinationError(op string, err error) error {
	return &ConnectionError{Collaborator: "destination", Op: op, Err: err}
}

// FormattingError is a failed cosmetic update. It never fails a run.
type FormattingError struct {
	Sheet  string
	Region string
	Err    error
}

func (e *FormattingError) Error() string {
	return fmt.Sprintf("formatting %s!%s failed: %v", e.Sheet, e.Region, e.Err)
}

func (e *FormattingError) Unwrap() error { return e.Err }

// UnhandledError carries a panic recovered during a run.
type UnhandledError struct {
	Value any
}

func (e *UnhandledError) Error() string {
	return fmt.Sprintf("unhandled failure: %v", e.Value)
}
