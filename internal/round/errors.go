package round

import "errors"

var (
	// ErrNotFound indicates the requested round does not exist.
	ErrNotFound = errors.New("round not found")

	// ErrAlreadyExists indicates a create-if-absent lost to a concurrent
	// creator. Callers treat this as a successful no-op.
	ErrAlreadyExists = errors.New("round already exists")

	// ErrTransitionConflict indicates a conditional status update matched no
	// row: either another caller won the transition race or the round moved
	// on. Losers treat this as a successful no-op, not a failure.
	ErrTransitionConflict = errors.New("round status transition conflict")
)
