package guard

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/gatewarden/gatewarden/pkg/errors"
)

func TestCheckRequestURLTooLong(t *testing.T) {
	g := New(DefaultConfig())

	r := httptest.NewRequest("GET", "/search?q="+strings.Repeat("a", 2100), nil)
	err := g.CheckRequest(r)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeURLTooLong))

	r = httptest.NewRequest("GET", "/search?q=short", nil)
	assert.NoError(t, g.CheckRequest(r))
}

func TestCheckRequestHeadersTooBig(t *testing.T) {
	g := New(DefaultConfig())

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("x-padding", strings.Repeat("x", 9000))
	err := g.CheckRequest(r)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeHeadersTooBig))
}

func TestCheckRequestContentLengthCeiling(t *testing.T) {
	g := New(Config{MaxBodySize: 1024})

	// Exactly at the limit is allowed.
	r := httptest.NewRequest("POST", "/api/contact", nil)
	r.ContentLength = 1024
	assert.NoError(t, g.CheckRequest(r))

	// One byte over is rejected.
	r.ContentLength = 1025
	err := g.CheckRequest(r)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeBodyTooLarge))
}

func TestBodyLimitPerRoute(t *testing.T) {
	g := New(Config{
		MaxBodySize: DefaultMaxBodySize,
		RouteLimits: map[string]int64{
			"/api/payments": 100 << 10,
			"/api":          5 << 20,
		},
	})

	assert.Equal(t, int64(100<<10), g.BodyLimit("/api/payments/charge"), "longest prefix wins")
	assert.Equal(t, int64(5<<20), g.BodyLimit("/api/quotes"))
	assert.Equal(t, int64(DefaultMaxBodySize), g.BodyLimit("/healthz"))
}

func TestReadBodyWithLimit(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"Ada"}`))
	var p payload
	require.NoError(t, ReadBodyWithLimit(r, 1024, &p))
	assert.Equal(t, "Ada", p.Name)
}

func TestReadBodyWithLimitOverflowDistinctFromBadJSON(t *testing.T) {
	big := `{"name":"` + strings.Repeat("a", 100) + `"}`
	r := httptest.NewRequest("POST", "/", strings.NewReader(big))

	var out map[string]any
	err := ReadBodyWithLimit(r, 50, &out)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeBodyTooLarge))

	r = httptest.NewRequest("POST", "/", strings.NewReader("{not json"))
	err = ReadBodyWithLimit(r, 1024, &out)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeBodyNotJSON))
}

func TestReadBodyWithLimitExactSizeAllowed(t *testing.T) {
	body := `{"k":"v"}`
	r := httptest.NewRequest("POST", "/", strings.NewReader(body))

	var out map[string]any
	assert.NoError(t, ReadBodyWithLimit(r, int64(len(body)), &out))
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "payment processing timed out", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeRequestTimeout))
	assert.Contains(t, err.Error(), "payment processing timed out")

	err = WithTimeout(context.Background(), time.Second, "never fires", func(context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}
