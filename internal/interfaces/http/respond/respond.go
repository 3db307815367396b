// Package respond writes JSON responses and maps application error codes to
// HTTP status codes.  Both the middleware chain and the handlers use it so
// every error leaving the gateway has the same shape.
package respond

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gatewarden/gatewarden/pkg/errors"
)

// ErrorBody is the wire shape of every error response.
type ErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

type envelope struct {
	Error ErrorBody `json:"error"`
}

// JSON writes v with the given status.  Encoding failures are silently
// dropped; by the time they can happen the status line is already written.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error writes err as a JSON error response.  AppError codes choose the
// status; anything else becomes a sanitized 500.
func Error(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := StatusFromCode(code)

	message := "internal server error"
	if status != http.StatusInternalServerError {
		message = err.Error()
	}

	if retry := errors.GetRetryAfter(err); retry > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retry))
	}

	JSON(w, status, envelope{Error: ErrorBody{Code: code.String(), Message: message}})
}

// ValidationError writes a 400 carrying the per-field validation failures.
func ValidationError(w http.ResponseWriter, fieldErrors []string) {
	JSON(w, http.StatusBadRequest, envelope{Error: ErrorBody{
		Code:    errors.ErrCodeValidation.String(),
		Message: "request validation failed",
		Details: fieldErrors,
	}})
}

// StatusFromCode maps an application error code to an HTTP status.
func StatusFromCode(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeBadRequest, errors.ErrCodeValidation,
		errors.ErrCodeBodyNotJSON, errors.ErrCodeSuspiciousInput:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeForbidden, errors.ErrCodeIPBlocked,
		errors.ErrCodeCriticalRequest, errors.ErrCodeBotDetected,
		errors.ErrCodeOriginNotAllowed:
		return http.StatusForbidden
	case errors.ErrCodeNotFound, errors.ErrCodeBreakerNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConflict:
		return http.StatusConflict
	// All request-ceiling violations report 413 so clients see one status
	// for "your request is too big", whichever ceiling tripped.
	case errors.ErrCodePayloadTooLarge, errors.ErrCodeBodyTooLarge,
		errors.ErrCodeURLTooLong, errors.ErrCodeHeadersTooBig:
		return http.StatusRequestEntityTooLarge
	case errors.ErrCodeTooManyRequests, errors.ErrCodeRateLimited,
		errors.ErrCodeRateLimitBlocked, errors.ErrCodeStoreUnavailable:
		return http.StatusTooManyRequests
	case errors.ErrCodeTimeout, errors.ErrCodeRequestTimeout, errors.ErrCodeBreakerTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrCodeServiceUnavailable, errors.ErrCodeBreakerOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
