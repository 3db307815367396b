package botdetect

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/logging"
)

const humanUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDetector(t *testing.T) (*Detector, *testClock) {
	t.Helper()
	clock := newTestClock()
	d := NewDetector(logging.NewNopLogger(), WithClock(clock.Now))
	t.Cleanup(func() { _ = d.Close() })
	return d, clock
}

// humanRequest builds a request that trips none of the heuristics.
func humanRequest() *http.Request {
	r := httptest.NewRequest("POST", "/api/contact", nil)
	r.Header.Set("user-agent", humanUA)
	r.Header.Set("referer", "https://example.com/contact")
	r.Header.Set("x-real-ip", "10.0.0.1")
	return r
}

func TestAnalyzeCleanSubmission(t *testing.T) {
	d, clock := newTestDetector(t)

	res := d.Analyze(humanRequest(), map[string]any{"name": "Ada"}, clock.Now().Add(-30*time.Second))
	assert.False(t, res.IsBot)
	assert.False(t, res.ShouldBlock)
	assert.Zero(t, res.Confidence)
	assert.Empty(t, res.Reasons)
}

func TestAnalyzeHoneypotFilled(t *testing.T) {
	d, clock := newTestDetector(t)

	form := map[string]any{
		"name":    "Ada",
		"website": "http://spam.biz",
	}
	res := d.Analyze(humanRequest(), form, clock.Now().Add(-30*time.Second))
	assert.True(t, res.IsBot)
	assert.True(t, res.ShouldBlock)
	assert.Contains(t, res.Reasons, "Honeypot field 'website' was filled")
}

func TestAnalyzeHoneypotEmptyStringNeverFlags(t *testing.T) {
	d, clock := newTestDetector(t)

	form := map[string]any{"website": "", "fax": "   ", "name": "Ada"}
	res := d.Analyze(humanRequest(), form, clock.Now().Add(-30*time.Second))
	assert.False(t, res.IsBot)
	assert.Empty(t, res.Reasons)
}

func TestAnalyzeTiming(t *testing.T) {
	d, clock := newTestDetector(t)

	tooFast := d.Analyze(humanRequest(), nil, clock.Now().Add(-time.Second))
	assert.InDelta(t, 0.7, tooFast.Confidence, 1e-9)
	assert.True(t, tooFast.IsBot)
	assert.False(t, tooFast.ShouldBlock, "0.7 is not above the blocking threshold")

	tooOld := d.Analyze(humanRequest(), map[string]any{"k": "v"}, clock.Now().Add(-2*time.Hour))
	assert.InDelta(t, 0.7, tooOld.Confidence, 1e-9)

	// Zero formLoadTime skips the timing heuristic entirely.
	skipped := d.Analyze(humanRequest(), map[string]any{"k": "w"}, time.Time{})
	assert.Zero(t, skipped.Confidence)
}

func TestAnalyzeUserAgentFirstRuleOnly(t *testing.T) {
	tests := []struct {
		name   string
		ua     string
		weight float64
	}{
		{"empty", "", 0.9},
		// Matches both the signature rule and the short rule; only the
		// signature weight applies.
		{"curl", "curl/8.4.0", 0.8},
		{"python client", "python-requests/2.31.0", 0.8},
		{"short", "MyApp/1.0", 0.7},
		{"long", string(make([]byte, 501)), 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, weight, ok := analyzeUserAgent(tt.ua)
			require.True(t, ok)
			assert.NotEmpty(t, reason)
			assert.InDelta(t, tt.weight, weight, 1e-9)
		})
	}

	_, _, ok := analyzeUserAgent(humanUA)
	assert.False(t, ok)
}

func TestAnalyzeUserAgentJavascriptNotFlagged(t *testing.T) {
	_, _, ok := analyzeUserAgent("Mozilla/5.0 Gecko/20100101 JavaScript-capable browser")
	assert.False(t, ok, "javascript must not match the java signature")

	// "java" followed by something other than "script" is still a Java client.
	reason, weight, ok := analyzeUserAgent("JavaServer-HttpClient/2.0 (backend)")
	require.True(t, ok)
	assert.NotEmpty(t, reason)
	assert.InDelta(t, 0.8, weight, 1e-9)
}

func TestAnalyzeDuplicateSubmission(t *testing.T) {
	d, clock := newTestDetector(t)
	form := map[string]any{"email": "ada@example.com"}
	loadTime := clock.Now().Add(-30 * time.Second)

	first := d.Analyze(humanRequest(), form, loadTime)
	assert.Zero(t, first.Confidence)

	second := d.Analyze(humanRequest(), form, loadTime)
	assert.InDelta(t, 0.8, second.Confidence, 1e-9)
	assert.True(t, second.IsBot)
	assert.True(t, second.ShouldBlock)

	// Outside the window the fingerprint no longer counts as a duplicate.
	clock.Advance(61 * time.Second)
	third := d.Analyze(humanRequest(), form, clock.Now().Add(-30*time.Second))
	assert.Zero(t, third.Confidence)
}

func TestAnalyzeDifferentBodiesNotDuplicates(t *testing.T) {
	d, clock := newTestDetector(t)
	loadTime := clock.Now().Add(-30 * time.Second)

	_ = d.Analyze(humanRequest(), map[string]any{"email": "a@example.com"}, loadTime)
	res := d.Analyze(humanRequest(), map[string]any{"email": "b@example.com"}, loadTime)
	assert.Zero(t, res.Confidence)
}

func TestAnalyzeMissingRefererOnPost(t *testing.T) {
	d, clock := newTestDetector(t)

	r := humanRequest()
	r.Header.Del("referer")
	res := d.Analyze(r, map[string]any{"name": "Ada"}, clock.Now().Add(-30*time.Second))
	assert.InDelta(t, 0.3, res.Confidence, 1e-9)
	assert.False(t, res.IsBot)

	// GETs are exempt.
	g := httptest.NewRequest("GET", "/api/contact", nil)
	g.Header.Set("user-agent", humanUA)
	res = d.Analyze(g, nil, time.Time{})
	assert.Zero(t, res.Confidence)
}

func TestAnalyzeConfidenceClampedToOne(t *testing.T) {
	d, clock := newTestDetector(t)

	r := httptest.NewRequest("POST", "/api/contact", nil) // empty UA, no referer
	form := map[string]any{"website": "http://spam.biz"}

	res := d.Analyze(r, form, clock.Now().Add(-time.Second))
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	assert.True(t, res.ShouldBlock)
	assert.Len(t, res.Reasons, 4)
}

func TestPruneFingerprints(t *testing.T) {
	d, clock := newTestDetector(t)

	_ = d.Analyze(humanRequest(), map[string]any{"k": "v"}, time.Time{})
	clock.Advance(2 * time.Minute)
	d.pruneFingerprints()

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Empty(t, d.seen)
}
