// Package ledger keeps a SQLite history of processing runs and per-file results.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/trevanbox/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	dirs        TEXT NOT NULL DEFAULT '[]',
	dry_run     INTEGER NOT NULL DEFAULT 0,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	moved       INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS results (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL REFERENCES runs(id),
	file         TEXT NOT NULL,
	success      INTEGER NOT NULL,
	kind         TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	moved        INTEGER NOT NULL DEFAULT 0,
	dry_run      INTEGER NOT NULL DEFAULT 0,
	charset      TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	tags         TEXT NOT NULL DEFAULT '[]',
	checksum     TEXT NOT NULL DEFAULT '',
	processed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_file ON results(file);
CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);
`

// Recorder is the part of the ledger the processor writes to.
type Recorder interface {
	BeginRun(dirs []string, dryRun bool) (string, error)
	Record(runID string, r models.ProcessingResult) error
	FinishRun(runID string, reports []models.DirectoryReport) error
}

// Verify *DB satisfies Recorder at compile time.
var _ Recorder = (*DB)(nil)

// Entry is one recorded file result.
type Entry struct {
	RunID       string    `json:"run_id"`
	File        string    `json:"file"`
	Success     bool      `json:"success"`
	Kind        string    `json:"kind,omitempty"`
	Error       string    `json:"error,omitempty"`
	Moved       bool      `json:"moved"`
	DryRun      bool      `json:"dry_run"`
	Charset     string    `json:"charset,omitempty"`
	Title       string    `json:"title,omitempty"`
	Tags        []string  `json:"tags"`
	Checksum    string    `json:"checksum,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// DB wraps a sql.DB with ledger operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the ledger database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// BeginRun inserts a run row and returns its ID.
func (db *DB) BeginRun(dirs []string, dryRun bool) (string, error) {
	id := uuid.NewString()
	dirsJSON, _ := json.Marshal(dirs)
	_, err := db.conn.Exec(`INSERT INTO runs (id, dirs, dry_run, started_at) VALUES (?, ?, ?, ?)`,
		id, string(dirsJSON), dryRun, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("ledger: begin run: %w", err)
	}
	return id, nil
}

// Record appends one file result to a run.
func (db *DB) Record(runID string, r models.ProcessingResult) error {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, _ := json.Marshal(tags)
	at := r.ProcessedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO results (run_id, file, success, kind, error, moved, dry_run, charset, title, tags, checksum, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, r.File, r.Success, string(r.Kind), r.ErrorString(), r.Moved, r.DryRun,
		r.Charset, r.Title, string(tagsJSON), r.Checksum, at.UTC())
	if err != nil {
		return fmt.Errorf("ledger: record: %w", err)
	}
	return nil
}

// FinishRun stores the run's totals.
func (db *DB) FinishRun(runID string, reports []models.DirectoryReport) error {
	var succeeded, moved, failed int
	for _, rep := range reports {
		succeeded += rep.Succeeded()
		moved += rep.Moved()
		failed += rep.Failed()
	}
	_, err := db.conn.Exec(`
		UPDATE runs SET finished_at = ?, succeeded = ?, moved = ?, failed = ? WHERE id = ?
	`, time.Now().UTC(), succeeded, moved, failed, runID)
	if err != nil {
		return fmt.Errorf("ledger: finish run: %w", err)
	}
	return nil
}

// Recent returns the latest results, newest first.
func (db *DB) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT run_id, file, success, kind, error, moved, dry_run, charset, title, tags, checksum, processed_at
		FROM results ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			tagsJSON string
		)
		if err := rows.Scan(&e.RunID, &e.File, &e.Success, &e.Kind, &e.Error, &e.Moved, &e.DryRun,
			&e.Charset, &e.Title, &tagsJSON, &e.Checksum, &e.ProcessedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", err)
		}
		_ = json.Unmarshal([]byte(tagsJSON), &e.Tags)
		out = append(out, e)
	}
	return out, rows.Err()
}

// LastChecksum returns the checksum recorded by the most recent successful
// write of file, or "" when there is none.
func (db *DB) LastChecksum(file string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`
		SELECT checksum FROM results
		WHERE file = ? AND success = 1 AND checksum != ''
		ORDER BY id DESC LIMIT 1
	`, file).Scan(&cs)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ledger: last checksum: %w", err)
	}
	return cs, nil
}
