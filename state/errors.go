package state

import "errors"

// Rejection reasons. Each one means the requested operation does not apply
// in the current state; none of them is retryable without an outside change.
var (
	ErrNoQuarterInserted     = errors.New("no quarter inserted")
	ErrAlreadyHasQuarter     = errors.New("already has a quarter")
	ErrCrankHasNotBeenTurned = errors.New("crank has not been turned")
	ErrAlreadyTurnedCrank    = errors.New("crank already turned")
	ErrOutOfGumballs         = errors.New("out of gumballs")
)
