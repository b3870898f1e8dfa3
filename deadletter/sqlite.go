package deadletter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteSink persists one row per record in a local SQLite database.
type SQLiteSink struct {
	db   *sql.DB
	path string
}

// NewSQLiteSink opens (or creates) the database at path and ensures the
// dead_letters table exists.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode tolerates a reader (replay tooling) alongside the writer.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS dead_letters (
			id         TEXT PRIMARY KEY,
			signal_id  TEXT NOT NULL,
			reason     TEXT NOT NULL,
			detail     TEXT,
			record     TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_dead_letters_reason ON dead_letters(reason);
		CREATE INDEX IF NOT EXISTS idx_dead_letters_signal ON dead_letters(signal_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteSink{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteSink) Path() string {
	return s.path
}

// Persist inserts the record; a duplicate id is a no-op.
func (s *SQLiteSink) Persist(ctx context.Context, dl DeadLetter) error {
	record, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter %s: %w", dl.ID, err)
	}

	signalID := ""
	if dl.Signal != nil {
		signalID = dl.Signal.ID
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dead_letters (id, signal_id, reason, detail, record, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		dl.ID, signalID, string(dl.Reason), dl.Detail, string(record),
		dl.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
	)
	if err != nil {
		return fmt.Errorf("insert dead letter %s: %w", dl.ID, err)
	}
	return nil
}

// Load reads a persisted record by dead-letter id.
func (s *SQLiteSink) Load(ctx context.Context, id string) (DeadLetter, error) {
	var record string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM dead_letters WHERE id = ?`, id).Scan(&record)
	if err != nil {
		return DeadLetter{}, fmt.Errorf("load dead letter %s: %w", id, err)
	}

	var dl DeadLetter
	if err := json.Unmarshal([]byte(record), &dl); err != nil {
		return DeadLetter{}, fmt.Errorf("parse dead letter %s: %w", id, err)
	}
	return dl, nil
}

// ListByReason returns all persisted records with the given reason, oldest
// first. An empty reason returns everything.
func (s *SQLiteSink) ListByReason(ctx context.Context, reason Reason) ([]DeadLetter, error) {
	query := `SELECT record FROM dead_letters ORDER BY created_at`
	args := []any{}
	if reason != "" {
		query = `SELECT record FROM dead_letters WHERE reason = ? ORDER BY created_at`
		args = append(args, string(reason))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}
	defer rows.Close()

	var records []DeadLetter
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		var dl DeadLetter
		if err := json.Unmarshal([]byte(record), &dl); err != nil {
			return nil, fmt.Errorf("parse dead letter: %w", err)
		}
		records = append(records, dl)
	}
	return records, rows.Err()
}
