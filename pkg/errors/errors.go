// Package errors defines the sentinel errors shared by the search service,
// the typed load/query errors raised by the index store, and the mapping of
// both to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMalformedRecord   = errors.New("malformed record")
	ErrInvalidQuery      = errors.New("invalid query")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotReady          = errors.New("index not ready")
	ErrSourceUnavailable = errors.New("payload source unavailable")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
)

// MalformedRecordError reports a payload record that is missing a required
// field. Position is the zero-based index of the record in the payload, or -1
// when the payload envelope itself is invalid.
type MalformedRecordError struct {
	Position int
	Field    string
	Reason   string
}

func (e *MalformedRecordError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "missing required field"
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrMalformedRecord.Error(), reason)
	}
	if e.Position < 0 {
		return fmt.Sprintf("%s: %s %q", ErrMalformedRecord.Error(), reason, e.Field)
	}
	return fmt.Sprintf("%s: record %d: %s %q", ErrMalformedRecord.Error(), e.Position, reason, e.Field)
}

func (e *MalformedRecordError) Unwrap() error {
	return ErrMalformedRecord
}

// InvalidQueryError reports a query term or limit the store refuses to run.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidQuery.Error(), e.Reason)
}

func (e *InvalidQueryError) Unwrap() error {
	return ErrInvalidQuery
}

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidQuery), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrMalformedRecord):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrSourceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
