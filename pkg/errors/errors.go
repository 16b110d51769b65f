// Package errors defines the sentinel errors shared across the search
// engine, plus an AppError wrapper that carries an HTTP status code for
// the API layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMalformedRecord  = errors.New("malformed record")
	ErrDocumentNotFound = errors.New("document not found")
	ErrIndexUnavailable = errors.New("index unavailable")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrCorruptSegment   = errors.New("corrupt segment")
	ErrInternal         = errors.New("internal error")
)

// AppError wraps a sentinel error with a human-readable message and the
// HTTP status code to surface to API clients.
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

// HTTPStatusCode maps an error to the HTTP status the API layer should
// return. Unknown errors map to 500.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMalformedRecord), errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
