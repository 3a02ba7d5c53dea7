package clock

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no match exists for the given id
	ErrNotFound = errors.New("match not found")

	// ErrInvalidTransition is returned when an operation is illegal in the match's current phase
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrAlreadyTerminal is returned for operations on a COMPLETED match.
	// It wraps ErrInvalidTransition.
	ErrAlreadyTerminal = fmt.Errorf("%w: match already completed", ErrInvalidTransition)

	// ErrInvalidArgument is returned for malformed control input such as non-positive stoppage minutes
	ErrInvalidArgument = errors.New("invalid argument")
)
