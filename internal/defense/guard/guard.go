// Package guard enforces hard resource ceilings on inbound requests before
// any body parsing happens, and provides timeout wrappers for downstream
// work.  All ceiling checks are header-only.
package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gatewarden/gatewarden/pkg/errors"
)

const (
	// MaxURLLength bounds the full request URI.
	MaxURLLength = 2048
	// MaxHeaderBytes bounds the summed size of all header keys and values.
	MaxHeaderBytes = 8192
	// DefaultMaxBodySize bounds request bodies unless overridden per route.
	DefaultMaxBodySize = 10 << 20
)

// Config sets the body-size ceiling, globally and per path prefix.
type Config struct {
	// MaxBodySize is the default body ceiling in bytes.
	MaxBodySize int64 `mapstructure:"max_body_size"`

	// RouteLimits override the ceiling for specific path prefixes, for
	// endpoints that should never see large payloads.
	RouteLimits map[string]int64 `mapstructure:"route_limits"`
}

// DefaultConfig returns the standard ceilings.
func DefaultConfig() Config {
	return Config{MaxBodySize: DefaultMaxBodySize}
}

// Guard validates request shape.  Stateless; one instance serves the whole
// process.
type Guard struct {
	cfg Config
}

// New creates a guard.
func New(cfg Config) *Guard {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	return &Guard{cfg: cfg}
}

// BodyLimit returns the body ceiling for the given path: the longest
// matching route prefix wins, otherwise the global default.
func (g *Guard) BodyLimit(path string) int64 {
	limit := g.cfg.MaxBodySize
	matched := -1
	for prefix, l := range g.cfg.RouteLimits {
		if strings.HasPrefix(path, prefix) && len(prefix) > matched {
			matched = len(prefix)
			limit = l
		}
	}
	return limit
}

// CheckRequest enforces the URL, header and Content-Length ceilings.  It
// never reads the body; an absent or lying Content-Length is caught later
// by ReadBodyWithLimit.
func (g *Guard) CheckRequest(r *http.Request) error {
	if n := len(r.URL.RequestURI()); n > MaxURLLength {
		return errors.New(errors.ErrCodeURLTooLong,
			fmt.Sprintf("request URL length %d exceeds the %d character limit", n, MaxURLLength))
	}

	var headerBytes int
	for k, vals := range r.Header {
		for _, v := range vals {
			headerBytes += len(k) + len(v)
		}
	}
	if headerBytes > MaxHeaderBytes {
		return errors.New(errors.ErrCodeHeadersTooBig,
			fmt.Sprintf("request headers of %d bytes exceed the %d byte limit", headerBytes, MaxHeaderBytes))
	}

	if limit := g.BodyLimit(r.URL.Path); r.ContentLength > limit {
		return errors.New(errors.ErrCodeBodyTooLarge,
			fmt.Sprintf("declared content length %d exceeds the %d byte limit", r.ContentLength, limit))
	}
	return nil
}

// ReadBodyWithLimit reads and JSON-decodes the body, enforcing the actual
// byte count against the limit.  This catches bodies whose Content-Length
// was absent or understated.  A size overflow and a JSON parse failure are
// distinct errors.
func ReadBodyWithLimit(r *http.Request, limit int64, out any) error {
	if r.Body == nil {
		return errors.New(errors.ErrCodeBodyNotJSON, "request body is empty")
	}

	// Read one byte past the limit so overflow is detectable.
	raw, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBodyNotJSON, "failed to read request body")
	}
	if int64(len(raw)) > limit {
		return errors.New(errors.ErrCodeBodyTooLarge,
			fmt.Sprintf("request body exceeds the %d byte limit", limit))
	}
	if len(raw) == 0 {
		return errors.New(errors.ErrCodeBodyNotJSON, "request body is empty")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, errors.ErrCodeBodyNotJSON, "request body is not valid JSON")
	}
	return nil
}

// WithTimeout runs fn and abandons it after the timeout.  The underlying
// call is not cancelled, only its result is ignored; fn receives a context
// that is cancelled on timeout so cooperative callees can stop early.
func WithTimeout(ctx context.Context, timeout time.Duration, message string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.New(errors.ErrCodeRequestTimeout, message).WithCause(ctx.Err())
	}
}
