// Package apperror holds the errors list-flix services report to callers:
// a missing list or item, a rejected request body, a duplicate member, a
// role that may not perform an action, and a request without a session.
//
// Each constructor wraps one of the sentinels below, so callers branch with
// errors.Is and the HTTP layer picks a status code in handler.writeError.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("invalid input")
	ErrConflict     = errors.New("already exists")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// AppError is a sentinel plus the message shown to the user. Field names the
// offending request field for validation errors.
type AppError struct {
	Err     error
	Message string
	Field   string
}

func (e *AppError) Error() string { return e.Message }

func (e *AppError) Unwrap() error { return e.Err }

// NotFound reports that resource id (a list, an item, a user) does not exist
// or is hidden from the caller.
func NotFound(resource, id string) *AppError {
	return &AppError{Err: ErrNotFound, Message: fmt.Sprintf("%s %s does not exist", resource, id)}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{Err: ErrValidation, Message: message, Field: field}
}

// Conflict reports a duplicate, such as a member joining twice or an item
// added to a list that already has it.
func Conflict(resource, id string) *AppError {
	return &AppError{Err: ErrConflict, Message: fmt.Sprintf("%s %s already exists", resource, id)}
}

// Forbidden is a role check failure, e.g. a viewer editing a list.
func Forbidden(message string) *AppError {
	return &AppError{Err: ErrForbidden, Message: message}
}

func Unauthorized(message string) *AppError {
	return &AppError{Err: ErrUnauthorized, Message: message}
}
