package prometheus

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/defense/secmon"
	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/logging"
)

func TestObserveRequest(t *testing.T) {
	m := New("gatewarden")

	m.ObserveRequest("GET", "/api/quotes", 200, 25*time.Millisecond)
	m.ObserveRequest("GET", "/api/quotes", 200, 30*time.Millisecond)
	m.ObserveRequest("POST", "/api/bookings", 429, time.Millisecond)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/quotes", "200")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "/api/bookings", "429")))
}

func TestObserveBotVerdict(t *testing.T) {
	m := New("gatewarden")

	m.ObserveBotVerdict(false, false)
	m.ObserveBotVerdict(true, false)
	m.ObserveBotVerdict(true, true)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.BotVerdicts.WithLabelValues("clean")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BotVerdicts.WithLabelValues("suspect")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BotVerdicts.WithLabelValues("blocked")))
}

func TestSetBreakerState(t *testing.T) {
	m := New("gatewarden")

	m.SetBreakerState("payments", "OPEN")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.BreakerState.WithLabelValues("payments")))

	m.SetBreakerState("payments", "CLOSED")
	assert.Equal(t, float64(0), testutil.ToFloat64(m.BreakerState.WithLabelValues("payments")))
}

func TestMetricsSinkCountsEvents(t *testing.T) {
	m := New("gatewarden")
	sink := NewMetricsSink(m)

	e := secmon.NewEvent(secmon.EventIPBlocked, secmon.SeverityHigh)
	require.NoError(t, sink.Record(context.Background(), e))
	require.NoError(t, sink.Record(context.Background(), e))

	assert.Equal(t, float64(2),
		testutil.ToFloat64(m.SecurityEvents.WithLabelValues(secmon.EventIPBlocked, "high")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New("gatewarden")
	m.ObserveRequest("GET", "/", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "gatewarden_http_requests_total")
}

func TestRegisterBlockListGauge(t *testing.T) {
	m := New("gatewarden")
	monitor := secmon.NewMonitor(secmon.NewLogSink(logging.NewNopLogger()), logging.NewNopLogger())
	t.Cleanup(func() { _ = monitor.Close() })

	m.RegisterBlockListGauge("gatewarden", monitor)
	monitor.BlockIP(context.Background(), "1.2.3.4", "test block", time.Hour, 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "gatewarden_blocked_ips 1")
}
