package chat

import "errors"

// Sentinel errors for the caller-facing failure taxonomy. Authorization and
// validation failures are always surfaced, never swallowed.
var (
	// ErrNotFound covers missing bookings and rooms.
	ErrNotFound = errors.New("not found")
	// ErrForbidden covers callers that are not one of the room's (or the
	// booking's) two parties.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation covers bad input the client must correct.
	ErrValidation = errors.New("invalid input")
)
