package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/gatewarden/gatewarden/internal/defense/secmon"
	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/logging"
	"github.com/gatewarden/gatewarden/pkg/errors"
)

const insertEventSQL = `
INSERT INTO security_events (
	id, occurred_at, event_type, severity, ip_address,
	user_agent, endpoint, method, details, blocked
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// EventRepository appends security events to the archive table.  The table
// is insert-only; nothing in this subsystem updates or deletes rows.
type EventRepository struct {
	db     *sql.DB
	logger logging.Logger
}

// NewEventRepository creates a repository over an open connection.
func NewEventRepository(conn *Connection, log logging.Logger) *EventRepository {
	return &EventRepository{db: conn.DB(), logger: log.Named("eventrepo")}
}

// Insert writes one event.
func (r *EventRepository) Insert(ctx context.Context, e secmon.SecurityEvent) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode event details")
	}

	_, err = r.db.ExecContext(ctx, insertEventSQL,
		e.ID, e.Timestamp, e.EventType, string(e.Severity),
		nullable(e.IPAddress), nullable(e.UserAgent),
		nullable(e.Endpoint), nullable(e.Method),
		details, e.Blocked,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert security event")
	}
	return nil
}

// RecentEvents returns the newest events, most recent first.  Used by the
// admin API.
func (r *EventRepository) RecentEvents(ctx context.Context, limit int) ([]secmon.SecurityEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, occurred_at, event_type, severity,
	COALESCE(ip_address, ''), COALESCE(user_agent, ''),
	COALESCE(endpoint, ''), COALESCE(method, ''), details, blocked
FROM security_events
ORDER BY occurred_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query security events")
	}
	defer rows.Close()

	var events []secmon.SecurityEvent
	for rows.Next() {
		var (
			e       secmon.SecurityEvent
			sev     string
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &sev,
			&e.IPAddress, &e.UserAgent, &e.Endpoint, &e.Method,
			&details, &e.Blocked); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan security event")
		}
		e.Severity = secmon.Severity(sev)
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate security events")
	}
	return events, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Sink adapts the repository to the event-sink interface.  Inserts run with
// their own timeout so a slow database cannot stall event fan-out.
type Sink struct {
	repo *EventRepository
}

// NewSink wraps a repository.
func NewSink(repo *EventRepository) *Sink {
	return &Sink{repo: repo}
}

// Record inserts the event.
func (s *Sink) Record(ctx context.Context, e secmon.SecurityEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.repo.Insert(ctx, e)
}

// Close is a no-op; the connection is owned by the process.
func (s *Sink) Close() error { return nil }

// Name identifies the sink in logs and metrics.
func (s *Sink) Name() string { return "postgres" }
