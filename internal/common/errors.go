// Package common defines sentinel errors shared by the lifecycle services,
// repositories and the HTTP layer. Callers match them with errors.Is.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")

	// Lifecycle errors.
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrMeetingRequired   = errors.New("meeting not scheduled")
	ErrAlreadyProcessed  = errors.New("already processed")

	// Terms token errors. All of them are terminal for the visit.
	ErrTokenMissing  = errors.New("token missing")
	ErrTokenInvalid  = errors.New("token invalid")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenAccepted = errors.New("token already accepted")

	// Input errors.
	ErrValidation = errors.New("validation error")
	ErrUpload     = errors.New("upload rejected")

	ErrUnauthorized = errors.New("unauthorized")
)

// IsTokenError reports whether err is one of the terminal token errors.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenMissing) ||
		errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenAccepted)
}
