// Package apperrors defines the error taxonomy shared by the repositories,
// the services and the HTTP layer.  Lower layers wrap these sentinels with
// fmt.Errorf("...: %w", ...) and callers match them with errors.Is.
package apperrors

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound: the trip, reservation or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState: the target cannot accept the operation right now,
	// e.g. a trip that is not PLANNED or has no seats left, or an illegal
	// reservation status edge.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict: a duplicate active reservation, a unique-constraint
	// violation at commit, or a delete blocked by dependent rows.
	ErrConflict = errors.New("conflict")
	// ErrValidation: malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden: the caller's role or ownership does not allow the
	// operation.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized: missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRetryable: the database gave up waiting for a lock or picked the
	// transaction as a deadlock victim.  Nothing was written; the client
	// may retry.
	ErrRetryable = errors.New("temporarily unavailable")
)

// CheckError maps an error to the HTTP status code the API responds with.
func CheckError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRetryable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
