package errs

import "errors"

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrForbidden indicates that the record exists but belongs to someone else.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates a missing or invalid identity credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict indicates the record already exists.
	ErrConflict = errors.New("resource already exists")
	// ErrInvalidPayload indicates a malformed inbound message.
	ErrInvalidPayload = errors.New("invalid payload")
)
