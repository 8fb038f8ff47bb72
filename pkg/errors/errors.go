// Package errors provides common domain error types for voxreel.
//
// This package defines sentinel errors for the conditions every stage of the
// reconstruction engine reports: missing inputs, invalid configuration,
// selections that no longer match the catalog, and oversized compilations.
// Using typed errors enables consistent handling with errors.Is() checks.
//
// Usage:
//
//	import vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
//
//	// Return a domain error
//	return nil, fmt.Errorf("storage root %s: %w", root, vrerrors.ErrNotFound)
//
//	// Check for domain errors
//	if vrerrors.IsStaleReference(err) {
//	    // refresh the selection
//	}
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors - common sentinel errors for domain conditions.
var (
	// ErrNotFound indicates the requested resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input or configuration.
	ErrValidation = errors.New("validation error")

	// ErrStaleReference indicates a selection names a segment or turn that
	// is not present in the current catalog.
	ErrStaleReference = errors.New("stale reference")

	// ErrUnreadable indicates an input file could not be parsed or decoded.
	ErrUnreadable = errors.New("unreadable input")

	// ErrResourceExhausted indicates an operation exceeded a configured limit
	// or ran out of a resource (disk, duration budget).
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrInvalidState indicates the operation is not valid for the current state.
	ErrInvalidState = errors.New("invalid state")
)

// StaleReferenceError lists every selection entry missing from the catalog.
type StaleReferenceError struct {
	Missing []string
}

func (e *StaleReferenceError) Error() string {
	return fmt.Sprintf("%s: %d id(s) not in catalog: %s", ErrStaleReference, len(e.Missing), strings.Join(e.Missing, ", "))
}

// Unwrap lets errors.Is match ErrStaleReference.
func (e *StaleReferenceError) Unwrap() error {
	return ErrStaleReference
}

// Validationf returns an ErrValidation-wrapping error with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsStaleReference reports whether any error in err's chain is ErrStaleReference.
func IsStaleReference(err error) bool {
	return errors.Is(err, ErrStaleReference)
}

// IsUnreadable reports whether any error in err's chain is ErrUnreadable.
func IsUnreadable(err error) bool {
	return errors.Is(err, ErrUnreadable)
}

// IsResourceExhausted reports whether any error in err's chain is ErrResourceExhausted.
func IsResourceExhausted(err error) bool {
	return errors.Is(err, ErrResourceExhausted)
}

// IsInvalidState reports whether any error in err's chain is ErrInvalidState.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}
