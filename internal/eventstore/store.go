// Package eventstore keeps captured browser events in a local SQLite database.
package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mfenderov/browseflow/pkg/models"
	_ "modernc.org/sqlite" // CGO-free SQLite
)

// ErrInvalidEvent wraps validation failures from InsertEvents.
var ErrInvalidEvent = errors.New("invalid event")

// Store is a SQLite-backed event log.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS events(
	  id           INTEGER PRIMARY KEY,
	  event_id     TEXT    NOT NULL,
	  ts           INTEGER NOT NULL,
	  type         TEXT    NOT NULL,
	  tab_id       INTEGER,
	  window_id    INTEGER,
	  url          TEXT    NOT NULL DEFAULT '',
	  title        TEXT    NOT NULL DEFAULT '',
	  payload_json TEXT    NOT NULL CHECK (json_valid(payload_json))
	);
	CREATE INDEX IF NOT EXISTS idx_events_ts   ON events(ts);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Validate checks the fields every stored event needs.
func Validate(e models.Event) error {
	if e.Type == "" {
		return fmt.Errorf("%w: type cannot be empty", ErrInvalidEvent)
	}
	if e.Timestamp <= 0 {
		return fmt.Errorf("%w: timestamp must be positive", ErrInvalidEvent)
	}
	return nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// InsertEvents stores events in one transaction. An invalid event aborts the
// whole batch. Events without an ID get a deterministic one.
func (s *Store) InsertEvents(ctx context.Context, events []models.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events(event_id, ts, type, tab_id, window_id, url, title, payload_json)
		VALUES(?,?,?,?,?,?,?,json(?))`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, e := range events {
		if err := Validate(e); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("event %d: %w", i, err)
		}
		if e.ID == "" {
			e.ID = models.GenerateEventID(e)
		}
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.Timestamp, e.Type, nullInt(e.TabID), nullInt(e.WindowID),
			e.URL, e.Title, string(payload)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	slog.Debug("stored events", "count", len(events))
	return nil
}

// LoadRange returns events with from <= timestamp < to, ordered by timestamp
// then insertion order. A zero to means no upper bound.
func (s *Store) LoadRange(ctx context.Context, from, to int64) ([]models.Event, error) {
	query := `SELECT event_id, ts, type, tab_id, window_id, url, title, payload_json FROM events WHERE ts >= ?`
	args := []any{from}
	if to > 0 {
		query += ` AND ts < ?`
		args = append(args, to)
	}
	query += ` ORDER BY ts, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var (
			e             models.Event
			tab, window   sql.NullInt64
			payloadString string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Type, &tab, &window, &e.URL, &e.Title, &payloadString); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if tab.Valid {
			e.TabID = models.IntPtr(int(tab.Int64))
		}
		if window.Valid {
			e.WindowID = models.IntPtr(int(window.Int64))
		}
		if err := json.Unmarshal([]byte(payloadString), &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload of %s: %w", e.ID, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}
