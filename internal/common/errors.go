package common

import (
	"net/http"
	"strconv"
	"time"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
	// RetryAfter is advertised to clients on retryable failures.
	RetryAfter time.Duration
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Retryable constructs a 503 AppError that tells the client when to retry.
func Retryable(code, message string, after time.Duration, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: http.StatusServiceUnavailable, Err: err, RetryAfter: after}
}

// WriteAppError renders e with the canonical error shape.
func WriteAppError(w http.ResponseWriter, e *AppError) {
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(max(1, int(e.RetryAfter.Seconds()))))
	}
	JSONError(w, e.HTTPStatus, e.Code, e.Message, e.Details)
}
