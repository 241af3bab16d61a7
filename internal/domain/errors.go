package domain

import (
	"errors"
	"sort"
	"strings"
)

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist in the database.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input fails business
// rule validation (e.g. blank station id, missing arrival time).
// Handlers should map this to HTTP 400 Bad Request.
var ErrValidation = errors.New("validation error")

// ErrConflict is returned by repo functions when an insert collides with an
// existing stop for the same (station_id, arrival_time) pair.
var ErrConflict = errors.New("conflict")

// ErrAlreadyResolved is returned when a write expects a pending stop but the
// stop has already reached a terminal state.
var ErrAlreadyResolved = errors.New("stop already resolved")

// ValidationError carries field-level detail for a rejected request.
// errors.Is(err, ErrValidation) reports true for any *ValidationError.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns an empty ValidationError ready for Add calls.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

// Add records a problem with the named field.
func (e *ValidationError) Add(field, message string) {
	e.Fields[field] = message
}

// OrNil returns nil when no field problems were recorded.
// Use it as the return value of a validate function.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Error joins the field messages in a stable order,
// e.g. "validation error: arrivalTime is required; stationId is required".
func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is lets errors.Is match a *ValidationError against ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
