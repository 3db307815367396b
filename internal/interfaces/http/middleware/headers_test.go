package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gatewarden/gatewarden/internal/config"
)

func testCORSConfig() config.CORSConfig {
	return config.CORSConfig{
		AllowedOrigins:   []string{"https://app.example.com"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           10 * time.Minute,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeadersOnEveryResponse(t *testing.T) {
	policy := NewHeaderPolicy(testCORSConfig())

	rec := httptest.NewRecorder()
	policy.Handler(okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/api/quotes", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestHSTSAndCSPWhenConfigured(t *testing.T) {
	cfg := testCORSConfig()
	cfg.EnableHSTS = true
	cfg.ContentSecurityPolicy = "default-src 'self'"
	policy := NewHeaderPolicy(cfg)

	rec := httptest.NewRecorder()
	policy.Handler(okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	assert.Contains(t, rec.Header().Get("Strict-Transport-Security"), "max-age=31536000")
	assert.Equal(t, "default-src 'self'", rec.Header().Get("Content-Security-Policy"))
}

func TestPreflightAllowedOrigin(t *testing.T) {
	policy := NewHeaderPolicy(testCORSConfig())

	req := httptest.NewRequest("OPTIONS", "/api/bookings", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	rec := httptest.NewRecorder()
	policy.Handler(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestPreflightDisallowedOrigin(t *testing.T) {
	policy := NewHeaderPolicy(testCORSConfig())

	req := httptest.NewRequest("OPTIONS", "/api/bookings", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	req.Header.Set("Access-Control-Request-Method", "POST")

	rec := httptest.NewRecorder()
	policy.Handler(okHandler()).ServeHTTP(rec, req)

	// Preflight still terminates, but without permissive CORS headers the
	// browser refuses the actual request.
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestWildcardOrigin(t *testing.T) {
	cfg := testCORSConfig()
	cfg.AllowedOrigins = []string{"*"}
	policy := NewHeaderPolicy(cfg)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://anything.example.org")

	rec := httptest.NewRecorder()
	policy.Handler(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://anything.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestOriginMatchIsCaseInsensitive(t *testing.T) {
	policy := NewHeaderPolicy(testCORSConfig())
	assert.True(t, policy.IsOriginAllowed("HTTPS://APP.EXAMPLE.COM"))
	assert.False(t, policy.IsOriginAllowed("https://app.example.com.evil.net"))
	assert.False(t, policy.IsOriginAllowed(""))
}
