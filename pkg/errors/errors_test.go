package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeRateLimited, "too many requests")

	require.NotNil(t, err)
	assert.Equal(t, ErrCodeRateLimited, err.Code)
	assert.Equal(t, "too many requests", err.Message)
	assert.NotEmpty(t, err.Stack)
	assert.Equal(t, "[RL_001] too many requests", err.Error())
}

func TestErrorWithDetail(t *testing.T) {
	err := New(ErrCodeIPBlocked, "ip blocked").WithDetail("ip=1.2.3.4")

	assert.Equal(t, "[SEC_001] ip blocked: ip=1.2.3.4", err.Error())
}

func TestWithDetailDoesNotMutateOriginal(t *testing.T) {
	orig := New(ErrCodeInternal, "boom")
	withDetail := orig.WithDetail("extra")

	assert.Empty(t, orig.Detail)
	assert.Equal(t, "extra", withDetail.Detail)
}

func TestWithDetailNilReceiver(t *testing.T) {
	var err *AppError
	assert.Nil(t, err.WithDetail("detail"))
	assert.Nil(t, err.WithCause(stderrors.New("x")))
	assert.Nil(t, err.WithRetryAfter(3))
}

func TestWrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, ErrCodeStoreUnavailable, "store increment failed")

	require.NotNil(t, err)
	assert.Equal(t, ErrCodeStoreUnavailable, err.Code)
	assert.ErrorIs(t, err, cause)
}

func TestWrapNilReturnsNil(t *testing.T) {
	var err error
	wrapped := Wrap(err, ErrCodeInternal, "should be nil")
	// A nil *AppError must compare equal to nil at the call site.
	assert.Nil(t, wrapped)
}

func TestWrapPreservesCodeForUnknown(t *testing.T) {
	inner := New(ErrCodeBreakerOpen, "breaker open")
	wrapped := Wrap(inner, CodeUnknown, "call failed")

	assert.Equal(t, ErrCodeBreakerOpen, wrapped.Code)
}

func TestIsCodeTraversesChain(t *testing.T) {
	inner := New(ErrCodeBodyTooLarge, "body too large")
	middle := Wrap(inner, ErrCodeBadRequest, "request rejected")
	outer := fmt.Errorf("handler: %w", middle)

	assert.True(t, IsCode(outer, ErrCodeBodyTooLarge))
	assert.True(t, IsCode(outer, ErrCodeBadRequest))
	assert.False(t, IsCode(outer, ErrCodeBreakerOpen))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeOK, GetCode(nil))
	assert.Equal(t, CodeUnknown, GetCode(stderrors.New("plain")))
	assert.Equal(t, ErrCodeBotDetected, GetCode(New(ErrCodeBotDetected, "bot")))
}

func TestGetRetryAfter(t *testing.T) {
	assert.Equal(t, 0, GetRetryAfter(stderrors.New("plain")))
	assert.Equal(t, 60, GetRetryAfter(RateLimit("rate limit exceeded", 60)))

	wrapped := fmt.Errorf("middleware: %w", RateLimit("rate limit exceeded", 42))
	assert.Equal(t, 42, GetRetryAfter(wrapped))
}

func TestIsPolicyViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", RateLimit("limited", 10), true},
		{"ip blocked", New(ErrCodeIPBlocked, "blocked"), true},
		{"bot", New(ErrCodeBotDetected, "bot"), true},
		{"forbidden", Forbidden("no"), true},
		{"validation", InvalidParam("bad field"), false},
		{"internal", Internal("boom"), false},
		{"plain error", stderrors.New("x"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPolicyViolation(tt.err))
		})
	}
}

func TestConvenienceConstructors(t *testing.T) {
	assert.Equal(t, CodeNotFound, NotFound("x").Code)
	assert.Equal(t, CodeInvalidParam, InvalidParam("x").Code)
	assert.Equal(t, CodeUnauthorized, Unauthorized("x").Code)
	assert.Equal(t, CodeForbidden, Forbidden("x").Code)
	assert.Equal(t, CodeInternal, Internal("x").Code)
	assert.Equal(t, CodePayloadTooLarge, PayloadTooLarge("x").Code)
	assert.Equal(t, CodeTimeout, Timeout("x").Code)
	assert.Equal(t, CodeUnavailable, Unavailable("x").Code)
	assert.Equal(t, 30, RateLimit("x", 30).RetryAfter)
}
