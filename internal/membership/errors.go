package membership

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("membership: not found")
	ErrDuplicateMembership = errors.New("membership: membership already exists")
	ErrInvalidTransition   = errors.New("membership: invalid transition")
	ErrInvalidInput        = errors.New("membership: invalid input")
)

// InvalidTransitionError reports a guard failure with a human-readable
// reason. It matches ErrInvalidTransition via errors.Is.
type InvalidTransitionError struct {
	Op     string
	Status Status
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("membership: cannot %s from status %q: %s", e.Op, e.Status, e.Reason)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func invalidTransition(op string, status Status, reason string) error {
	return &InvalidTransitionError{Op: op, Status: status, Reason: reason}
}
