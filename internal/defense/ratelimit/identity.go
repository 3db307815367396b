package ratelimit

import (
	"net/http"
	"strings"
)

// userIdentifierPrefixLen bounds how much of the Authorization header goes
// into the user identifier.  Twenty characters is enough to tell tokens
// apart without storing whole credentials as map keys.
const userIdentifierPrefixLen = 20

// ClientIP extracts the caller's IP from proxy headers, in trust order:
// cf-connecting-ip (set by the CDN), the first segment of x-forwarded-for,
// then x-real-ip.  Returns "unknown" when none is present so that direct
// hits without proxy headers still share one counter.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("cf-connecting-ip"); ip != "" {
		return strings.TrimSpace(ip)
	}
	if xff := r.Header.Get("x-forwarded-for"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			xff = xff[:idx]
		}
		if ip := strings.TrimSpace(xff); ip != "" {
			return ip
		}
	}
	if ip := r.Header.Get("x-real-ip"); ip != "" {
		return strings.TrimSpace(ip)
	}
	return "unknown"
}

// UserIdentifier derives the user-tier key from the Authorization header.
// Unauthenticated requests all share the "anonymous" bucket.
func UserIdentifier(r *http.Request) string {
	auth := r.Header.Get("authorization")
	if auth == "" {
		return "anonymous"
	}
	if len(auth) > userIdentifierPrefixLen {
		auth = auth[:userIdentifierPrefixLen]
	}
	return "user:" + auth
}

// EndpointIdentifier derives the endpoint-tier key from the URL path.
func EndpointIdentifier(r *http.Request) string {
	return "endpoint:" + r.URL.Path
}
