// Package audit persists a trail of tool-call decisions to SQLite.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Record is one authorized, refused, or deferred tool call.
type Record struct {
	ID        string
	Time      time.Time
	Tool      string
	Canonical string
	Mode      string
	Action    string
	Source    string
}

// Store is a SQLite-backed decision log.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens (or creates) the decision log at path.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open db: %w", err)
	}

	// WAL mode so recording does not block concurrent readers.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: wal mode: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		ts INTEGER NOT NULL,
		tool TEXT NOT NULL,
		canonical TEXT NOT NULL,
		mode TEXT NOT NULL,
		action TEXT NOT NULL,
		source TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: create table: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Record appends one decision to the log. An empty ID gets a generated UUID;
// a zero Time gets the current UTC time.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, ts, tool, canonical, mode, action, source) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Time.UnixNano(), rec.Tool, rec.Canonical, rec.Mode, rec.Action, rec.Source,
	)
	if err != nil {
		return fmt.Errorf("audit: insert decision: %w", err)
	}
	return nil
}

// Recent returns up to limit decisions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, tool, canonical, mode, action, source FROM decisions ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var rec Record
		var ts int64
		if err := rows.Scan(&rec.ID, &ts, &rec.Tool, &rec.Canonical, &rec.Mode, &rec.Action, &rec.Source); err != nil {
			return nil, fmt.Errorf("audit: scan decision: %w", err)
		}
		rec.Time = time.Unix(0, ts).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate decisions: %w", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
