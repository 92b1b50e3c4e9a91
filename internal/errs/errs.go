// Package errs defines the coded error taxonomy shared by every engine.
// Callers upstream (legacy sync, alerts, operators) branch on the code, so
// codes are stable strings and never change meaning.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code identifies a class of failure.
type Code string

const (
	ValidationFailure      Code = "VALIDATION_FAILURE"
	UnknownCategory        Code = "UNKNOWN_CATEGORY"
	CategoryNotSyncable    Code = "CATEGORY_NOT_SYNCABLE"
	NotFound               Code = "NOT_FOUND"
	IdentifierConflict     Code = "IDENTIFIER_CONFLICT"
	Forbidden              Code = "FORBIDDEN"
	ConcurrentModification Code = "CONCURRENT_MODIFICATION"
	Unavailable            Code = "UNAVAILABLE"
	Internal               Code = "INTERNAL"
)

// HTTPStatus returns the status an HTTP adapter should answer with.
func (c Code) HTTPStatus() int {
	switch c {
	case ValidationFailure, UnknownCategory, CategoryNotSyncable:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case IdentifierConflict, ConcurrentModification:
		return http.StatusConflict
	case Forbidden:
		return http.StatusForbidden
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the same request may succeed if sent again
// unchanged. Data errors and not-found are never retryable.
func (c Code) Retryable() bool {
	switch c {
	case ConcurrentModification, Unavailable, Internal:
		return true
	default:
		return false
	}
}

// Error is a coded error. Details carries machine-readable context such as
// offending ids or category pairs.
type Error struct {
	Code    Code
	Message string
	Details []string
	cause   error
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Details, ", "))
}

func (e *Error) Unwrap() error { return e.cause }

// New returns an error with the given code.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying error.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// WithDetails returns a copy of e carrying the given details.
func (e *Error) WithDetails(details ...string) *Error {
	cp := *e
	cp.Details = append(append([]string(nil), e.Details...), details...)
	return &cp
}

// CodeOf returns the code of the first *Error in err's chain, or Internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return Internal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// DetailsOf returns the details of the first *Error in err's chain.
func DetailsOf(err error) []string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Details
	}
	return nil
}

func Validation(format string, args ...any) *Error {
	return New(ValidationFailure, format, args...)
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return New(IdentifierConflict, format, args...)
}
