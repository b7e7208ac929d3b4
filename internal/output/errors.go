package output

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error is a structured error with code, message, and optional hint.
type Error struct {
	Code       string
	Message    string
	Hint       string
	HTTPStatus int
	Retryable  bool
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Hint)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode returns the appropriate exit code for this error.
func (e *Error) ExitCode() int {
	return ExitCodeFor(e.Code)
}

// Error constructors for common cases.

func ErrUsage(msg string) *Error {
	return &Error{Code: CodeUsage, Message: msg}
}

func ErrUsageHint(msg, hint string) *Error {
	return &Error{Code: CodeUsage, Message: msg, Hint: hint}
}

func ErrNotFound(resource, identifier string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, identifier),
	}
}

// ErrHTTP builds the error for a non-retryable 4xx response.
// The message is always "HTTP <status>"; detail from the body goes in the hint.
func ErrHTTP(status int, detail string) *Error {
	code := CodeClient
	switch status {
	case http.StatusNotFound:
		code = CodeNotFound
	case http.StatusUnauthorized:
		code = CodeAuth
	case http.StatusForbidden:
		code = CodeForbidden
	case http.StatusTooManyRequests:
		code = CodeRateLimit
	}
	return &Error{
		Code:       code,
		Message:    fmt.Sprintf("HTTP %d", status),
		Hint:       detail,
		HTTPStatus: status,
	}
}

// ErrServer builds the error for a retryable 5xx response.
func ErrServer(status int, detail string) *Error {
	return &Error{
		Code:       CodeAPI,
		Message:    fmt.Sprintf("HTTP %d", status),
		Hint:       detail,
		HTTPStatus: status,
		Retryable:  true,
	}
}

func ErrRateLimit(retryAfter time.Duration) *Error {
	hint := "Try again later"
	if retryAfter > 0 {
		hint = fmt.Sprintf("Try again in %s", retryAfter)
	}
	return &Error{
		Code:       CodeRateLimit,
		Message:    "HTTP 429",
		Hint:       hint,
		HTTPStatus: http.StatusTooManyRequests,
		RetryAfter: retryAfter,
	}
}

func ErrTimeout(after time.Duration) *Error {
	return &Error{
		Code:      CodeTimeout,
		Message:   "request timed out",
		Hint:      fmt.Sprintf("no response within %s, check your network connection", after),
		Retryable: true,
	}
}

func ErrNetwork(cause error) *Error {
	return &Error{
		Code:      CodeNetwork,
		Message:   "Network error",
		Hint:      cause.Error(),
		Retryable: true,
		Cause:     cause,
	}
}

func ErrAPI(status int, msg string) *Error {
	return &Error{
		Code:       CodeAPI,
		Message:    msg,
		HTTPStatus: status,
	}
}

func ErrCircuitOpen(host string) *Error {
	return &Error{
		Code:    CodeCircuitOpen,
		Message: fmt.Sprintf("Upstream %s is failing, requests are paused", host),
		Hint:    "Wait for the circuit to half-open or run: dashcache clear --reset-gate",
	}
}

func ErrBusy(limit int) *Error {
	return &Error{
		Code:    CodeBusy,
		Message: fmt.Sprintf("Too many concurrent warmers (limit %d)", limit),
		Hint:    "Try again when another prefetch finishes",
	}
}

// AsError attempts to convert an error to an *Error.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Code:    CodeAPI,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsRetryable reports whether err is a structured error marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}
