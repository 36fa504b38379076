package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// Lifecycle guard errors. Each one names the exact precondition that failed so
// callers can tell a redundant retry apart from a genuinely invalid request.
var (
	ErrNotCompleted         = New("NOT_COMPLETED", http.StatusBadRequest, "only completed documents can be archived")
	ErrAlreadyArchived      = New("ALREADY_ARCHIVED", http.StatusBadRequest, "document is already archived")
	ErrNotArchived          = New("NOT_ARCHIVED", http.StatusBadRequest, "only archived documents can be purged or restored")
	ErrNotFailed            = New("NOT_FAILED", http.StatusBadRequest, "only failed documents can be cleared")
	ErrNotReplaceable       = New("NOT_REPLACEABLE", http.StatusBadRequest, "only completed documents can be replaced")
	ErrNameCollision        = New("NAME_COLLISION", http.StatusConflict, "an active document with this name already exists")
	ErrConfirmationRequired = New("CONFIRMATION_REQUIRED", http.StatusPreconditionFailed, "purge requires explicit confirmation")
	ErrOperationInProgress  = New("OPERATION_IN_PROGRESS", http.StatusConflict, "another lifecycle operation is running for this document")
	ErrCriticalStore        = New("CRITICAL_STORE", http.StatusInternalServerError, "authoritative store operation failed")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy of the error carrying remediation data, such as
// the id of the document blocking a restore.
func WithDetails(err *Error, details map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Details = details
	return &clone
}
