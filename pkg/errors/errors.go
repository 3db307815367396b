// Package errors provides the unified error type and factory functions for
// the gatewarden request-defense stack.  Every layer (guards, infrastructure,
// HTTP interface) uses AppError as the single carrier for structured error
// information, enabling consistent HTTP responses, logging, and metrics.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// stackDepth is the maximum number of frames captured per error.
const stackDepth = 32

// captureStack returns a formatted call-stack string starting two frames above
// the caller (skipping captureStack itself and New/Wrap).
func captureStack(skip int) string {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		f, more := frames.Next()
		// Trim standard-library noise to keep traces readable.
		if !strings.Contains(f.File, "runtime/") {
			fmt.Fprintf(&sb, "\n\t%s:%d %s", f.File, f.Line, f.Function)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// AppError — the canonical error type
// ─────────────────────────────────────────────────────────────────────────────

// AppError is the single structured error type used throughout gatewarden.
// It satisfies the standard error interface and supports Go 1.13+ error
// wrapping so that errors.Is / errors.As / errors.Unwrap work transparently.
//
// The Message of a 4xx-class error is safe to return to clients verbatim;
// policy violations (rate limit, IP block, bot verdicts) carry fixed,
// non-detailed messages; internal errors are masked at the HTTP boundary and
// only the Detail/Cause/Stack fields reach the server-side log.
type AppError struct {
	// Code is the typed error code that uniquely identifies the failure category.
	Code ErrorCode

	// Message is the primary human-readable description of the error.
	Message string

	// Detail carries supplementary context (identifiers, limits, offsets)
	// that aids debugging without leaking internals to end users.
	Detail string

	// Cause is the underlying error, enabling errors.Is / errors.As traversal.
	Cause error

	// Stack contains the formatted call stack captured at creation.  It is
	// intentionally excluded from Error() output; logging middleware reads it
	// directly.
	Stack string

	// RetryAfter, when > 0, is the number of seconds the client should wait
	// before retrying.  Set by rate-limit and IP-block rejections and emitted
	// as the Retry-After response header.
	RetryAfter int
}

// Error implements the standard error interface.
// Format: "[<code>] <message>: <detail>"; the detail segment is omitted when empty.
func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail returns a shallow copy of the receiver with Detail set.
// It is safe to call on a nil pointer (returns nil).
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithCause returns a shallow copy of the receiver with Cause set to err.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Cause = err
	return &clone
}

// WithRetryAfter returns a shallow copy of the receiver with RetryAfter set
// to the given number of seconds.
func (e *AppError) WithRetryAfter(seconds int) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.RetryAfter = seconds
	return &clone
}

// ─────────────────────────────────────────────────────────────────────────────
// Factory functions
// ─────────────────────────────────────────────────────────────────────────────

// New constructs a fresh AppError with the given code and message.
// A call-stack snapshot is captured automatically.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Wrap constructs an AppError that wraps an existing error.  If err is nil,
// Wrap returns nil so it can be used inline on a fallible call.  When err is
// already an *AppError and code is CodeUnknown, the original code is
// preserved so cross-layer propagation does not lose the classification.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if code == CodeUnknown {
		var ae *AppError
		if errors.As(err, &ae) {
			code = ae.Code
		}
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
		Stack:   captureStack(1),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Error-chain inspection helpers
// ─────────────────────────────────────────────────────────────────────────────

// IsCode reports whether any error in err's chain is an *AppError with the
// given code.
func IsCode(err error, code ErrorCode) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) && ae.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// GetCode extracts the ErrorCode from the first *AppError found in err's
// chain, CodeUnknown when none is present, and CodeOK for a nil error.
// Middleware and metrics use this to obtain a single stable label.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// GetRetryAfter extracts the RetryAfter hint from the first *AppError in
// err's chain, or 0 when there is none.
func GetRetryAfter(err error) int {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.RetryAfter
	}
	return 0
}

// IsPolicyViolation reports whether err represents a request-defense policy
// rejection (rate limit, IP block, bot verdict, origin rejection) as opposed
// to a malformed request or an internal failure.
func IsPolicyViolation(err error) bool {
	var ae *AppError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.Code {
	case ErrCodeTooManyRequests, ErrCodeRateLimited, ErrCodeRateLimitBlocked,
		ErrCodeIPBlocked, ErrCodeCriticalRequest, ErrCodeBotDetected,
		ErrCodeOriginNotAllowed, ErrCodeForbidden:
		return true
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Convenience constructors
// ─────────────────────────────────────────────────────────────────────────────

// NotFound constructs a CodeNotFound AppError.
func NotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message, Stack: captureStack(1)}
}

// InvalidParam constructs a CodeInvalidParam AppError.  The message is safe
// to return to clients verbatim.
func InvalidParam(message string) *AppError {
	return &AppError{Code: CodeInvalidParam, Message: message, Stack: captureStack(1)}
}

// Unauthorized constructs a CodeUnauthorized AppError.
func Unauthorized(message string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message, Stack: captureStack(1)}
}

// Forbidden constructs a CodeForbidden AppError.
func Forbidden(message string) *AppError {
	return &AppError{Code: CodeForbidden, Message: message, Stack: captureStack(1)}
}

// Internal constructs a CodeInternal AppError.  Always log the underlying
// cause; the HTTP boundary replaces the message with a generic one.
func Internal(message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Stack: captureStack(1)}
}

// RateLimit constructs a CodeRateLimit AppError with a retry hint in seconds.
func RateLimit(message string, retryAfter int) *AppError {
	return &AppError{Code: CodeRateLimit, Message: message, RetryAfter: retryAfter, Stack: captureStack(1)}
}

// PayloadTooLarge constructs a CodePayloadTooLarge AppError.
func PayloadTooLarge(message string) *AppError {
	return &AppError{Code: CodePayloadTooLarge, Message: message, Stack: captureStack(1)}
}

// Timeout constructs a CodeTimeout AppError.
func Timeout(message string) *AppError {
	return &AppError{Code: CodeTimeout, Message: message, Stack: captureStack(1)}
}

// Unavailable constructs a CodeUnavailable AppError, used when a protected
// upstream is rejected by an open circuit breaker.
func Unavailable(message string) *AppError {
	return &AppError{Code: CodeUnavailable, Message: message, Stack: captureStack(1)}
}
