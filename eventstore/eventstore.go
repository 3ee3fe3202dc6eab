// Package eventstore persists webhook events received from external
// messaging providers. It backs both the inbound webhook ingestion path
// and the health-check subsystem's outcome history, using SQLite through
// the modernc.org/sqlite driver.
package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	// Pure-Go SQLite driver registered as "sqlite".
	_ "modernc.org/sqlite"
)

// EventTypeMessageReceived is the event type recorded for inbound SMS
// webhooks.
const EventTypeMessageReceived = "message.received"

// HealthCheckEventPrefix is the event type prefix under which health-check
// outcomes are stored.
const HealthCheckEventPrefix = "health_check."

// Event is a persisted webhook event record. Events are written once and
// never mutated; cleanup of old records is a maintenance concern outside
// this package.
type Event struct {
	ID          int64
	EventID     string
	EventType   string
	Payload     map[string]any
	Processed   bool
	ProcessedAt time.Time
	CreatedAt   time.Time
}

// PayloadString returns the named payload field as a string, or "" when
// absent or of another type.
func (e *Event) PayloadString(key string) string {
	if value, ok := e.Payload[key].(string); ok {
		return value
	}
	return ""
}

// PayloadFloat returns the named payload field as a float64. JSON numbers
// decode as float64, so this covers stored numeric fields.
func (e *Event) PayloadFloat(key string) (float64, bool) {
	value, ok := e.Payload[key].(float64)
	return value, ok
}

// Config holds the event store configuration.
type Config struct {
	// Driver is the database/sql driver name. Only "sqlite" is exercised
	// in production but the field keeps DSN handling explicit.
	Driver string `yaml:"driver" toml:"driver" env:"STORAGE_DRIVER" default:"sqlite"`

	// DSN is the SQLite data source name (a file path, or ":memory:").
	DSN string `yaml:"dsn" toml:"dsn" env:"STORAGE_DSN" default:"clarion.db"`
}

// Store is a SQLite-backed event repository. All methods are safe for
// concurrent use; database/sql serializes access to the underlying pool.
type Store struct {
	db     *sql.DB
	driver string
	dsn    string
}

// New opens the event store and applies pending schema migrations.
func New(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, ErrEmptyDSN
	}
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening event store: %w", err)
	}

	store := &Store{db: db, driver: driver, dsn: cfg.DSN}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// DB exposes the underlying handle for maintenance tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping verifies the store connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return ErrNotConnected
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("event store ping: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing event store: %w", err)
	}
	return nil
}

// Create persists a new event. The event id must be unique; replaying the
// same id fails with ErrDuplicateEventID so webhook redeliveries cannot
// double-record.
func (s *Store) Create(ctx context.Context, event *Event) error {
	if event.EventID == "" {
		return ErrEventIDEmpty
	}
	if event.EventType == "" {
		return ErrEventTypeEmpty
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encoding event payload: %w", err)
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	processedAt := sql.NullTime{}
	if !event.ProcessedAt.IsZero() {
		processedAt = sql.NullTime{Time: event.ProcessedAt.UTC(), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type, payload, processed, processed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.EventID, event.EventType, string(payload), event.Processed, processedAt, event.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", ErrDuplicateEventID, event.EventID)
		}
		return fmt.Errorf("inserting event %q: %w", event.EventID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// FindInboundMessage returns the oldest stored message.received event
// whose payload text exactly matches the given text and which was created
// at or after since. Returns ErrEventNotFound when no match exists yet.
func (s *Store) FindInboundMessage(ctx context.Context, text string, since time.Time) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, event_type, payload, processed, processed_at, created_at
		FROM webhook_events
		WHERE event_type = ?
		  AND json_extract(payload, '$.text') = ?
		  AND created_at >= ?
		ORDER BY created_at ASC
		LIMIT 1`,
		EventTypeMessageReceived, text, since.UTC())
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("querying inbound message: %w", err)
	}
	return event, nil
}

// ListByTypePrefix returns up to limit events whose type starts with
// prefix and which were created at or after since, newest first.
func (s *Store) ListByTypePrefix(ctx context.Context, prefix string, since time.Time, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, event_type, payload, processed, processed_at, created_at
		FROM webhook_events
		WHERE event_type LIKE ? ESCAPE '\'
		  AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?`,
		escapeLike(prefix)+"%", since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("querying events by type prefix %q: %w", prefix, err)
	}
	defer func() { _ = rows.Close() }()

	var events []*Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return events, nil
}

// CountByType returns the number of stored events with the exact type.
func (s *Store) CountByType(ctx context.Context, eventType string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM webhook_events WHERE event_type = ?`, eventType).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting events of type %q: %w", eventType, err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var (
		event       Event
		payload     string
		processedAt sql.NullTime
	)
	if err := row.Scan(&event.ID, &event.EventID, &event.EventType, &payload,
		&event.Processed, &processedAt, &event.CreatedAt); err != nil {
		return nil, err
	}
	if processedAt.Valid {
		event.ProcessedAt = processedAt.Time
	}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &event.Payload); err != nil {
			return nil, fmt.Errorf("decoding event payload: %w", err)
		}
	}
	return &event, nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces constraint failures in the error text;
	// there is no exported error type to match on.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}
