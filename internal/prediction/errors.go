package prediction

import "errors"

var (
	// ErrRoundNotActive indicates a submission outside the active window:
	// the round is not active, or the lock boundary has passed.
	ErrRoundNotActive = errors.New("round is not accepting predictions")

	// ErrInvalidValue indicates a malformed forecast: non-positive,
	// non-finite, or a path sample outside its domain.
	ErrInvalidValue = errors.New("invalid prediction value")
)
