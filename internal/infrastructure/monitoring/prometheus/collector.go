package prometheus

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gatewarden/gatewarden/internal/defense/secmon"
)

// RegisterBlockListGauge exports the live blocked-IP count.  Reading the
// monitor on scrape keeps the gauge exact without a polling loop.
func (m *Metrics) RegisterBlockListGauge(namespace string, monitor *secmon.Monitor) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "blocked_ips",
		Help:      "IPs currently on the block list.",
	}, func() float64 {
		return float64(len(monitor.GetBlockedIPs()))
	}))
}

// MetricsSink counts security events by type and severity.  It sits in the
// sink fan-out alongside the log, archive and stream sinks.
type MetricsSink struct {
	metrics *Metrics
}

// NewMetricsSink wraps the metrics.
func NewMetricsSink(m *Metrics) *MetricsSink {
	return &MetricsSink{metrics: m}
}

// Record counts the event.
func (s *MetricsSink) Record(_ context.Context, e secmon.SecurityEvent) error {
	s.metrics.SecurityEvents.WithLabelValues(e.EventType, string(e.Severity)).Inc()
	return nil
}

// Close is a no-op.
func (s *MetricsSink) Close() error { return nil }

// Name identifies the sink in logs and metrics.
func (s *MetricsSink) Name() string { return "metrics" }
