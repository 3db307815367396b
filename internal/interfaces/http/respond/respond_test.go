package respond

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gatewarden/gatewarden/pkg/errors"
)

func TestErrorMapsCodesToStatus(t *testing.T) {
	tests := []struct {
		code errors.ErrorCode
		want int
	}{
		{errors.ErrCodeIPBlocked, http.StatusForbidden},
		{errors.ErrCodeBotDetected, http.StatusForbidden},
		{errors.ErrCodeBodyTooLarge, http.StatusRequestEntityTooLarge},
		{errors.ErrCodeURLTooLong, http.StatusRequestEntityTooLarge},
		{errors.ErrCodeHeadersTooBig, http.StatusRequestEntityTooLarge},
		{errors.ErrCodeTooManyRequests, http.StatusTooManyRequests},
		{errors.ErrCodeStoreUnavailable, http.StatusTooManyRequests},
		{errors.ErrCodeBreakerOpen, http.StatusServiceUnavailable},
		{errors.ErrCodeRequestTimeout, http.StatusGatewayTimeout},
		{errors.ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		Error(rec, errors.New(tt.code, "boom"))
		assert.Equal(t, tt.want, rec.Code, "code %s", tt.code)
	}
}

func TestInternalErrorsAreSanitized(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, errors.New(errors.ErrCodeInternal, "pq: connection refused to db-prod-1"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db-prod-1")
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestRetryAfterHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, errors.RateLimit("slow down", 42))

	assert.Equal(t, "42", rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestValidationErrorCarriesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	ValidationError(rec, []string{"comment: potential SQL injection detected"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "potential SQL injection")
	assert.Contains(t, rec.Body.String(), errors.ErrCodeValidation.String())
}

func TestUnknownErrorIsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
