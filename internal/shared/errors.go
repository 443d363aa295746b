package shared

import "errors"

// Error categories shared by every domain package. Domain sentinels wrap one
// of these so the HTTP layer can map them without importing the domain.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the caller may not act on the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates the resource is not in a state that allows the operation.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates invalid or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock indicates a movement would drive stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrUnauthorized indicates a missing or unknown caller identity.
	ErrUnauthorized = errors.New("unauthorized")
)
