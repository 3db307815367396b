// Package middleware implements the gateway's request-defense chain as
// standard net/http middleware, composed by the router in a fixed order.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gatewarden/gatewarden/internal/config"
)

// HeaderPolicy centralises CORS and security-header construction so every
// response, success or error, carries the same policy.
type HeaderPolicy struct {
	allowedOrigins map[string]bool
	allowAll       bool

	allowedMethods   string
	allowedHeaders   string
	exposedHeaders   string
	allowCredentials bool
	maxAge           string
	enableHSTS       bool
	csp              string
}

// NewHeaderPolicy precomputes the policy from configuration.
func NewHeaderPolicy(cfg config.CORSConfig) *HeaderPolicy {
	p := &HeaderPolicy{
		allowedOrigins:   make(map[string]bool, len(cfg.AllowedOrigins)),
		allowedMethods:   strings.Join(cfg.AllowedMethods, ", "),
		allowedHeaders:   strings.Join(cfg.AllowedHeaders, ", "),
		exposedHeaders:   "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After",
		allowCredentials: cfg.AllowCredentials,
		maxAge:           strconv.Itoa(int(cfg.MaxAge.Seconds())),
		enableHSTS:       cfg.EnableHSTS,
		csp:              cfg.ContentSecurityPolicy,
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			p.allowAll = true
			continue
		}
		p.allowedOrigins[strings.ToLower(origin)] = true
	}
	return p
}

// IsOriginAllowed permits an exact match or the configured wildcard.
func (p *HeaderPolicy) IsOriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	return p.allowAll || p.allowedOrigins[strings.ToLower(origin)]
}

// ApplySecurityHeaders sets the fixed security-header set.  Applied to
// every response the gateway produces, including errors.
func (p *HeaderPolicy) ApplySecurityHeaders(h http.Header) {
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	h.Set("Pragma", "no-cache")
	if p.enableHSTS {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
	if p.csp != "" {
		h.Set("Content-Security-Policy", p.csp)
	}
}

// applyCORSHeaders sets the CORS response headers for an allowed origin.
func (p *HeaderPolicy) applyCORSHeaders(h http.Header, origin string) {
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Expose-Headers", p.exposedHeaders)
	if p.allowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	h.Add("Vary", "Origin")
}

// Handler returns the CORS + security-headers middleware.  Preflights are
// answered with 204 and never reach the rest of the chain.
func (p *HeaderPolicy) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.ApplySecurityHeaders(w.Header())

		origin := r.Header.Get("Origin")
		if origin != "" && p.IsOriginAllowed(origin) {
			p.applyCORSHeaders(w.Header(), origin)
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if origin != "" && p.IsOriginAllowed(origin) {
				w.Header().Set("Access-Control-Allow-Methods", p.allowedMethods)
				w.Header().Set("Access-Control-Allow-Headers", p.allowedHeaders)
				w.Header().Set("Access-Control-Max-Age", p.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
