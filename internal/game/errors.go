package game

import (
	"errors"
	"fmt"
)

// ErrPhaseConflict marks an illegal phase transition, e.g. committing an
// already committed action. The HTTP layer maps it to 409.
var ErrPhaseConflict = errors.New("action phase conflict")

// ActionFailed is a business-rule violation. Its message is rendered for the
// operator; it never indicates a bug and the initiate-phase variant leaves
// state untouched.
type ActionFailed struct {
	Message string
}

func (e *ActionFailed) Error() string { return e.Message }

func failf(format string, args ...any) *ActionFailed {
	return &ActionFailed{Message: fmt.Sprintf(format, args...)}
}

// InvariantError is a defect: unknown entity ids inside persisted state,
// serialization mismatches, impossible transitions. It propagates with full
// context instead of being shown as a normal outcome.
type InvariantError struct {
	Err error
}

func (e *InvariantError) Error() string { return "invariant violation: " + e.Err.Error() }
func (e *InvariantError) Unwrap() error { return e.Err }

func invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Err: fmt.Errorf(format, args...)}
}

// IsActionFailed reports whether err is a business failure safe to show.
func IsActionFailed(err error) bool {
	var af *ActionFailed
	return errors.As(err, &af)
}
