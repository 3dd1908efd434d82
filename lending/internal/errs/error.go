package errs

import (
	"errors"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrUnknownMember = errors.New("unknown member")
	ErrUnknownBook   = errors.New("unknown book")
	ErrUnknownLoan   = errors.New("unknown loan")

	ErrBookNotAvailable    = errors.New("book is not available")
	ErrAlreadyReturned     = errors.New("loan already returned")
	ErrDuplicateActiveLoan = errors.New("book already has an active loan")
	ErrInvariantViolation  = errors.New("availability is managed by lending")
	ErrInvalidTransition   = errors.New("invalid loan status transition")

	// ErrInconsistentState means a book flag and its loans may disagree and an operator has to look.
	ErrInconsistentState = errors.New("inconsistent lending state")
)

type ErrorResponse struct {
	Message string `json:"message"`
}
