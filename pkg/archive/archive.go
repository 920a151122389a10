// Package archive keeps a long-term SQLite copy of event streams, so a
// simulation's history survives the key-value store's retention window.
// Rows carry the event's canonical content hash for tamper-evidence.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/simforge/simtrace/pkg/event"
)

// Store is the archival store. Unlike the event store it is not an error
// boundary: archival is an explicit, caller-driven operation and failures
// surface as errors.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) an archive at path and runs the migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive %q: %w", path, err)
	}
	s, err := NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an existing database handle and runs the migration.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS events (
        event_id TEXT PRIMARY KEY,
        simulation_id TEXT NOT NULL,
        event_type TEXT NOT NULL,
        priority TEXT NOT NULL,
        timestamp DATETIME NOT NULL,
        data JSON,
        content_hash TEXT NOT NULL DEFAULT ''
    );
    CREATE INDEX IF NOT EXISTS idx_events_simulation
        ON events (simulation_id, timestamp);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("migrate archive: %w", err)
	}
	return nil
}

// Archive inserts events, skipping any whose event_id is already present,
// and returns how many rows were actually written. Re-archiving a stream
// is therefore idempotent.
func (s *Store) Archive(ctx context.Context, events []*event.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin archive tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT OR IGNORE INTO events (
        event_id, simulation_id, event_type, priority, timestamp, data, content_hash
    ) VALUES (?, ?, ?, ?, ?, ?, ?)`

	var written int
	for _, ev := range events {
		dataJSON, err := json.Marshal(ev.Data)
		if err != nil {
			return written, fmt.Errorf("marshal data for event %s: %w", ev.EventID, err)
		}
		hash, err := event.ContentHash(ev)
		if err != nil {
			return written, err
		}
		res, err := tx.ExecContext(ctx, query,
			ev.EventID,
			ev.SimulationID,
			ev.EventType,
			string(ev.Priority),
			ev.Timestamp.UTC().Format(time.RFC3339Nano),
			string(dataJSON),
			hash,
		)
		if err != nil {
			return written, fmt.Errorf("insert event %s: %w", ev.EventID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			written += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit archive tx: %w", err)
	}
	return written, nil
}

// Events returns the archived stream for a simulation in ascending
// timestamp order.
func (s *Store) Events(ctx context.Context, simulationID string) ([]*event.Event, error) {
	query := `
        SELECT event_id, simulation_id, event_type, priority, timestamp, data
        FROM events
        WHERE simulation_id = ?
        ORDER BY timestamp ASC`
	rows, err := s.db.QueryContext(ctx, query, simulationID)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*event.Event
	for rows.Next() {
		ev, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Count returns the number of archived events for a simulation.
func (s *Store) Count(ctx context.Context, simulationID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE simulation_id = ?`, simulationID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count archive: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanEventRow(rows *sql.Rows) (*event.Event, error) {
	var (
		eventID      string
		simulationID string
		eventType    string
		priority     string
		timestamp    string
		dataJSON     sql.NullString
	)
	if err := rows.Scan(&eventID, &simulationID, &eventType, &priority, &timestamp, &dataJSON); err != nil {
		return nil, err
	}

	var data map[string]any
	if dataJSON.Valid && dataJSON.String != "" {
		if err := json.Unmarshal([]byte(dataJSON.String), &data); err != nil {
			return nil, fmt.Errorf("decode data for event %s: %w", eventID, err)
		}
	}
	if data == nil {
		data = map[string]any{}
	}

	return &event.Event{
		EventID:      eventID,
		EventType:    eventType,
		SimulationID: simulationID,
		Timestamp:    parseTime(timestamp),
		Data:         data,
		Priority:     event.Priority(priority),
	}, nil
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
