package model

import "errors"

var (
	// ErrSubjectRequired is returned when a request does not name a child.
	ErrSubjectRequired = errors.New("child id is required")

	// ErrSessionNotFound is returned when a session is not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionCompleted is returned when a completed session is asked to end again.
	ErrSessionCompleted = errors.New("session already completed")

	// ErrSubjectMismatch is returned when a session is addressed through a child it does not belong to.
	ErrSubjectMismatch = errors.New("session belongs to another child")

	// ErrInvalidPayload is returned when an opaque payload is not valid JSON.
	ErrInvalidPayload = errors.New("payload must be valid JSON")

	// ErrInvalidRole is returned when a connection names an unknown role.
	ErrInvalidRole = errors.New("invalid connection role")

	// ErrUnauthorized is returned when a caller presents no valid credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when a valid credential does not grant access to a child.
	ErrForbidden = errors.New("forbidden")
)
