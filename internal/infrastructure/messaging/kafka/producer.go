// Package kafka streams security events to a Kafka topic for downstream
// consumers (SIEM pipelines, alerting).  The stream is an optional sink;
// delivery failures are logged by the fan-out and never block a request.
package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/defense/secmon"
	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/logging"
	"github.com/gatewarden/gatewarden/pkg/errors"
)

// writerInterface abstracts kafka.Writer for testing.
type writerInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventProducer publishes security events to one topic.  Messages are keyed
// by source IP so all events for an IP land on the same partition, keeping
// per-attacker ordering for consumers.
type EventProducer struct {
	writer writerInterface
	logger logging.Logger
	closed atomic.Bool

	published atomic.Int64
	failed    atomic.Int64
}

// NewEventProducer creates a producer from the stream config.
func NewEventProducer(cfg config.KafkaConfig, log logging.Logger) *EventProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.ProducerRetries,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Async:        false,
	}
	return &EventProducer{
		writer: w,
		logger: log.Named("kafka"),
	}
}

// newEventProducerWithWriter injects a writer.  Test hook.
func newEventProducerWithWriter(w writerInterface, log logging.Logger) *EventProducer {
	return &EventProducer{writer: w, logger: log.Named("kafka")}
}

// Record publishes one event, satisfying the event-sink interface.
func (p *EventProducer) Record(ctx context.Context, e secmon.SecurityEvent) error {
	if p.closed.Load() {
		return errors.New(errors.ErrCodeEventSinkFailure, "kafka producer is closed")
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode security event")
	}

	msg := kafka.Message{
		Key:   []byte(e.IPAddress),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.EventType)},
			{Key: "severity", Value: []byte(e.Severity)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.failed.Add(1)
		return errors.Wrap(err, errors.ErrCodeEventSinkFailure, "failed to publish security event")
	}
	p.published.Add(1)
	return nil
}

// Name identifies the sink in logs and metrics.
func (p *EventProducer) Name() string { return "kafka" }

// Stats returns lifetime publish counters.
func (p *EventProducer) Stats() (published, failed int64) {
	return p.published.Load(), p.failed.Load()
}

// Close flushes and closes the writer.  Safe to call more than once.
func (p *EventProducer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.writer.Close()
}
