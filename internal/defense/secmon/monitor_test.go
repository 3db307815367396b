package secmon

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/logging"
)

type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// captureSink remembers every event it receives.
type captureSink struct {
	mu     sync.Mutex
	events []SecurityEvent
}

func (s *captureSink) Record(_ context.Context, e SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) byType(eventType string) []SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SecurityEvent
	for _, e := range s.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newTestMonitor(t *testing.T) (*Monitor, *captureSink, *testClock) {
	t.Helper()
	clock := newTestClock()
	sink := &captureSink{}
	m := NewMonitor(sink, logging.NewNopLogger(), WithClock(clock.Now), WithRand(func() float64 { return 1 }))
	t.Cleanup(func() { _ = m.Close() })
	return m, sink, clock
}

func TestAutoBlockAfterFiveViolations(t *testing.T) {
	m, sink, clock := newTestMonitor(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		m.RecordViolation(ctx, "1.2.3.4", "SUSPICIOUS_URL")
		_, blocked := m.IsBlocked("1.2.3.4")
		require.False(t, blocked, "violation %d must not block yet", i+1)
	}

	m.RecordViolation(ctx, "1.2.3.4", "SUSPICIOUS_URL")

	blocked := m.GetBlockedIPs()
	require.Len(t, blocked, 1)
	entry := blocked[0]
	assert.Equal(t, "1.2.3.4", entry.IP)
	assert.Equal(t, 5, entry.Violations)
	assert.Equal(t, clock.Now().Add(25*time.Minute), entry.BlockUntil)

	require.Len(t, sink.byType(EventIPBlocked), 1)
}

func TestViolationCountersIndependentPerType(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		m.RecordViolation(ctx, "2.2.2.2", "UNION_SELECT")
	}
	for i := 0; i < 4; i++ {
		m.RecordViolation(ctx, "2.2.2.2", "PATH_TRAVERSAL")
	}

	_, blocked := m.IsBlocked("2.2.2.2")
	assert.False(t, blocked, "counters of different types must not sum")
}

func TestBlockExpiresAndIsPruned(t *testing.T) {
	m, _, clock := newTestMonitor(t)
	ctx := context.Background()

	m.BlockIP(ctx, "3.3.3.3", "manual", 10*time.Minute, 1)
	_, blocked := m.IsBlocked("3.3.3.3")
	require.True(t, blocked)

	clock.Advance(10 * time.Minute)
	_, blocked = m.IsBlocked("3.3.3.3")
	assert.False(t, blocked)
	assert.Empty(t, m.GetBlockedIPs())
}

func TestRepeatBlocksCompound(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	ctx := context.Background()

	m.BlockIP(ctx, "4.4.4.4", "first", time.Hour, 1)
	m.BlockIP(ctx, "4.4.4.4", "second", time.Hour, 1)

	blocked := m.GetBlockedIPs()
	require.Len(t, blocked, 1)
	assert.Equal(t, 2, blocked[0].Violations)
}

func TestBlockDurationCappedAt24Hours(t *testing.T) {
	m, _, clock := newTestMonitor(t)
	ctx := context.Background()

	// Drive the counter far past the threshold.
	for i := 0; i < 300; i++ {
		m.RecordViolation(ctx, "5.5.5.5", "EVAL_CALL")
	}

	entry, blocked := m.IsBlocked("5.5.5.5")
	require.True(t, blocked)
	assert.Equal(t, clock.Now().Add(24*time.Hour), entry.BlockUntil)
}

func TestUnblockIP(t *testing.T) {
	m, sink, _ := newTestMonitor(t)
	ctx := context.Background()

	m.BlockIP(ctx, "6.6.6.6", "manual", time.Hour, 1)
	assert.True(t, m.UnblockIP(ctx, "6.6.6.6"))
	assert.False(t, m.UnblockIP(ctx, "6.6.6.6"), "second unblock is a no-op")

	_, blocked := m.IsBlocked("6.6.6.6")
	assert.False(t, blocked)
	assert.Len(t, sink.byType(EventIPUnblocked), 1)
}

func TestAnalyzeRequestCleanIsLow(t *testing.T) {
	m, sink, _ := newTestMonitor(t)

	r := httptest.NewRequest("GET", "/api/quotes", nil)
	r.Header.Set("user-agent", "Mozilla/5.0 (Macintosh) AppleWebKit/537.36")
	r.Header.Set("x-real-ip", "7.7.7.7")

	a := m.AnalyzeRequest(context.Background(), r, nil)
	assert.Equal(t, SeverityLow, a.Severity)
	assert.Empty(t, a.Patterns)
	assert.Empty(t, sink.byType(EventSuspiciousRequest))
}

func TestAnalyzeRequestAttackToolUA(t *testing.T) {
	m, sink, _ := newTestMonitor(t)

	r := httptest.NewRequest("GET", "/api/quotes", nil)
	r.Header.Set("user-agent", "sqlmap/1.7.2#stable (https://sqlmap.org)")
	r.Header.Set("x-real-ip", "7.7.7.8")

	a := m.AnalyzeRequest(context.Background(), r, nil)
	assert.Equal(t, SeverityMedium, a.Severity)
	assert.Contains(t, a.Patterns, "ATTACK_TOOL_UA")
	require.Len(t, sink.byType(EventSuspiciousRequest), 1)
}

func TestAnalyzeRequestSuspiciousBodyIsHigh(t *testing.T) {
	m, _, _ := newTestMonitor(t)

	r := httptest.NewRequest("POST", "/api/bookings", nil)
	r.Header.Set("user-agent", "Mozilla/5.0 (Macintosh) AppleWebKit/537.36")
	r.Header.Set("x-real-ip", "7.7.7.9")

	body := []byte(`{"q":"1 UNION SELECT password FROM users"}`)
	a := m.AnalyzeRequest(context.Background(), r, body)
	assert.Equal(t, SeverityHigh, a.Severity)
	assert.Contains(t, a.Patterns, "UNION_SELECT")
}

func TestAnalyzeRequestSuspiciousURLIsHigh(t *testing.T) {
	m, _, _ := newTestMonitor(t)

	r := httptest.NewRequest("GET", "/files?path=../../etc/passwd", nil)
	r.Header.Set("user-agent", "Mozilla/5.0 (Macintosh) AppleWebKit/537.36")
	r.Header.Set("x-real-ip", "7.7.8.1")

	a := m.AnalyzeRequest(context.Background(), r, nil)
	assert.Equal(t, SeverityHigh, a.Severity)
	assert.Contains(t, a.Patterns, "SUSPICIOUS_URL")
}

func TestAnalyzeRequestBlockedIPIsCritical(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	ctx := context.Background()

	m.BlockIP(ctx, "8.8.8.8", "manual", time.Hour, 1)

	r := httptest.NewRequest("GET", "/api/quotes", nil)
	r.Header.Set("user-agent", "Mozilla/5.0 (Macintosh) AppleWebKit/537.36")
	r.Header.Set("x-real-ip", "8.8.8.8")

	a := m.AnalyzeRequest(ctx, r, nil)
	assert.Equal(t, SeverityCritical, a.Severity)
}

func TestAnalyzeRequestSeverityMonotonic(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	ctx := context.Background()

	m.BlockIP(ctx, "9.9.9.9", "manual", time.Hour, 1)

	// Blocked IP plus a merely-medium signal: critical must win.
	r := httptest.NewRequest("GET", "/api/quotes", nil)
	r.Header.Set("user-agent", "nikto/2.5.0")
	r.Header.Set("x-real-ip", "9.9.9.9")

	a := m.AnalyzeRequest(ctx, r, nil)
	assert.Equal(t, SeverityCritical, a.Severity)
}

func TestCleanupPrunesCountersProbabilistically(t *testing.T) {
	clock := newTestClock()
	sink := &captureSink{}

	roll := 0.0 // always below the prune chance
	m := NewMonitor(sink, logging.NewNopLogger(), WithClock(clock.Now), WithRand(func() float64 { return roll }))
	t.Cleanup(func() { _ = m.Close() })

	m.RecordViolation(context.Background(), "10.0.0.1", "EVAL_CALL")
	m.cleanup()

	m.mu.RLock()
	count := len(m.violations)
	m.mu.RUnlock()
	assert.Zero(t, count, "winning the dice roll wipes the counters")

	roll = 0.9
	m.RecordViolation(context.Background(), "10.0.0.1", "EVAL_CALL")
	m.cleanup()

	m.mu.RLock()
	count = len(m.violations)
	m.mu.RUnlock()
	assert.Equal(t, 1, count, "losing the dice roll keeps the counters")
}

func TestEscalate(t *testing.T) {
	assert.Equal(t, SeverityCritical, Escalate(SeverityCritical, SeverityLow))
	assert.Equal(t, SeverityHigh, Escalate(SeverityMedium, SeverityHigh))
	assert.Equal(t, SeverityLow, Escalate(SeverityLow, SeverityLow))
}

func TestMultiSinkContinuesPastFailures(t *testing.T) {
	good := &captureSink{}
	bad := failingSink{}
	multi := NewMultiSink(logging.NewNopLogger(), bad, good)

	var failures []string
	multi.SetFailureHook(func(sink string) { failures = append(failures, sink) })

	e := NewEvent(EventBotDetected, SeverityMedium)
	require.NoError(t, multi.Record(context.Background(), e))
	assert.Len(t, good.events, 1)
	assert.Equal(t, []string{"secmon.failingSink"}, failures,
		"each failed delivery reports the sink by name")
}

func TestMultiSinkFailureHookUsesSinkName(t *testing.T) {
	multi := NewMultiSink(logging.NewNopLogger(), namedFailingSink{})

	var failures []string
	multi.SetFailureHook(func(sink string) { failures = append(failures, sink) })

	require.NoError(t, multi.Record(context.Background(), NewEvent(EventRateLimited, SeverityLow)))
	assert.Equal(t, []string{"flaky"}, failures)
}

type failingSink struct{}

func (failingSink) Record(context.Context, SecurityEvent) error {
	return assert.AnError
}

func (failingSink) Close() error { return nil }

type namedFailingSink struct{ failingSink }

func (namedFailingSink) Name() string { return "flaky" }
