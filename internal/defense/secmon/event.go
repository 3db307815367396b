// Package secmon aggregates security signals into durable event logs and
// maintains the process-wide IP block list with escalating automatic blocks.
package secmon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/logging"
)

// Severity orders security findings.  Escalation is monotonic within a
// single analysis: once critical, nothing downgrades it.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Escalate returns the higher of the two severities.
func Escalate(current, candidate Severity) Severity {
	if severityRank[candidate] > severityRank[current] {
		return candidate
	}
	return current
}

// Event types emitted by the monitor.
const (
	EventSuspiciousRequest = "SUSPICIOUS_REQUEST"
	EventIPBlocked         = "IP_BLOCKED"
	EventIPUnblocked       = "IP_UNBLOCKED"
	EventBotDetected       = "BOT_DETECTED"
	EventInvalidInput      = "INVALID_INPUT"
	EventRateLimited       = "RATE_LIMITED"
)

// SecurityEvent is an immutable, append-only log record.  It is written to
// every configured sink and never mutated afterwards.
type SecurityEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	Severity  Severity       `json:"severity"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Endpoint  string         `json:"endpoint,omitempty"`
	Method    string         `json:"method,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Blocked   bool           `json:"blocked"`
}

// NewEvent stamps an event with an ID and timestamp.
func NewEvent(eventType string, severity Severity) SecurityEvent {
	return SecurityEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Severity:  severity,
	}
}

// EventSink receives security events.  Implementations must be safe for
// concurrent use.  Sink failures are logged by the monitor and never
// propagate to the request path.
type EventSink interface {
	Record(ctx context.Context, event SecurityEvent) error
	Close() error
}

// LogSink writes events to the structured log.  It is the sink of last
// resort and is always configured.
type LogSink struct {
	logger logging.Logger
}

// NewLogSink creates a sink that logs every event.
func NewLogSink(log logging.Logger) *LogSink {
	return &LogSink{logger: log.Named("secevent")}
}

// Record logs the event at a level matching its severity.
func (s *LogSink) Record(_ context.Context, e SecurityEvent) error {
	fields := []logging.Field{
		logging.String("event_id", e.ID),
		logging.String("event_type", e.EventType),
		logging.String("severity", string(e.Severity)),
		logging.String("ip", e.IPAddress),
		logging.String("endpoint", e.Endpoint),
		logging.Bool("blocked", e.Blocked),
	}
	if len(e.Details) > 0 {
		fields = append(fields, logging.Any("details", e.Details))
	}
	switch e.Severity {
	case SeverityCritical, SeverityHigh:
		s.logger.Warn("security event", fields...)
	default:
		s.logger.Info("security event", fields...)
	}
	return nil
}

// Close is a no-op; the underlying logger outlives the sink.
func (s *LogSink) Close() error { return nil }

// Name identifies the sink in logs and metrics.
func (s *LogSink) Name() string { return "log" }

// Namer lets a sink label itself in logs and metrics.  Sinks without it are
// labeled by their Go type.
type Namer interface {
	Name() string
}

func sinkName(s EventSink) string {
	if n, ok := s.(Namer); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// MultiSink fans an event out to every configured sink.  A failing sink is
// logged, counted and skipped; the others still receive the event.
type MultiSink struct {
	sinks  []EventSink
	logger logging.Logger
	onFail func(sink string)
}

// NewMultiSink composes sinks into one.
func NewMultiSink(log logging.Logger, sinks ...EventSink) *MultiSink {
	return &MultiSink{sinks: sinks, logger: log.Named("secevent")}
}

// SetFailureHook installs a callback invoked with the sink's name on every
// failed delivery.  Call before the first Record.
func (m *MultiSink) SetFailureHook(hook func(sink string)) {
	m.onFail = hook
}

// Record delivers the event to every sink.
func (m *MultiSink) Record(ctx context.Context, e SecurityEvent) error {
	for _, s := range m.sinks {
		if err := s.Record(ctx, e); err != nil {
			m.logger.Error("event sink failed",
				logging.String("event_id", e.ID),
				logging.String("sink", sinkName(s)),
				logging.Err(err),
			)
			if m.onFail != nil {
				m.onFail(sinkName(s))
			}
		}
	}
	return nil
}

// Close closes every sink, returning the first error encountered.
func (m *MultiSink) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
