package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors for the four client-facing failure kinds. Handlers map
// these onto HTTP status codes; anything that does not match one of them is
// an internal failure and surfaces as a 500.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
)

// Sides of a geofence boundary, reported by the geofence-gated forbidden
// cases so the caller knows which side was required.
const (
	SideInside  = "inside"
	SideOutside = "outside"
)

// ValidationError reports a missing or malformed input field.
// Recoverable by resubmission.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Field)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports an unknown order/delivery/shift/token.
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrNotFound, e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports a failed state precondition: already claimed,
// already started, duplicate active shift, delivery already delivered.
type ConflictError struct {
	Reason string
}

func NewConflictError(reason string) *ConflictError {
	return &ConflictError{Reason: reason}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConflict, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ForbiddenError reports a failed role, ownership or geofence precondition.
// RequiredSide is set to SideInside or SideOutside for the geofence cases
// and left empty otherwise.
type ForbiddenError struct {
	Reason       string
	RequiredSide string
}

func NewForbiddenError(reason string) *ForbiddenError {
	return &ForbiddenError{Reason: reason}
}

func NewGeofenceError(reason, requiredSide string) *ForbiddenError {
	return &ForbiddenError{Reason: reason, RequiredSide: requiredSide}
}

func (e *ForbiddenError) Error() string {
	if e.RequiredSide != "" {
		return fmt.Sprintf("%s: %s (must be %s the geofence)", ErrForbidden, e.Reason, e.RequiredSide)
	}
	return fmt.Sprintf("%s: %s", ErrForbidden, e.Reason)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }
