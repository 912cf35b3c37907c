// Package runlog persists a history of pipeline runs in SQLite. The
// scheduler and the status command only need the overall outcome and the
// processed-event count per run; this is that record.
package runlog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Status of one pipeline run.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFatal    = "fatal"
)

// Run is one recorded pipeline invocation.
type Run struct {
	ID             int64
	StartedAt      time.Time
	FinishedAt     time.Time
	Status         string
	Events         int
	DroppedRows    int
	SourceCount    int
	MissingSeasons []string
	Detail         string
}

// DB wraps the SQLite run-history database.
type DB struct {
	conn *sql.DB
}

// Open creates or opens the run-history database at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	status TEXT NOT NULL,
	events INTEGER NOT NULL,
	dropped_rows INTEGER NOT NULL,
	source_count INTEGER NOT NULL,
	missing_seasons TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT ''
)`
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Record appends one run to the history.
func (db *DB) Record(r Run) error {
	_, err := db.conn.Exec(`
INSERT INTO runs (started_at, finished_at, status, events, dropped_rows, source_count, missing_seasons, detail)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.StartedAt.UTC().Format(time.RFC3339),
		r.FinishedAt.UTC().Format(time.RFC3339),
		r.Status,
		r.Events,
		r.DroppedRows,
		r.SourceCount,
		strings.Join(r.MissingSeasons, ","),
		r.Detail,
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Recent returns the latest n runs, newest first.
func (db *DB) Recent(n int) ([]Run, error) {
	rows, err := db.conn.Query(`
SELECT id, started_at, finished_at, status, events, dropped_rows, source_count, missing_seasons, detail
FROM runs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started, finished, missing string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Status, &r.Events,
			&r.DroppedRows, &r.SourceCount, &missing, &r.Detail); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		if missing != "" {
			r.MissingSeasons = strings.Split(missing, ",")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
