package solver

import "errors"

var (
	// ErrUnavailable means the engine binary is missing. The condition is
	// permanent for the channel's lifetime; callers must not retry per-call.
	ErrUnavailable = errors.New("solver: engine unavailable")
	// ErrTimeout means the engine produced no response in time. Transient:
	// the caller may retry on a later cycle.
	ErrTimeout = errors.New("solver: engine timeout")
)
