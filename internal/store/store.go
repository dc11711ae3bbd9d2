// Package store provides the optional SQLite-backed journal archive.
//
// The archive is a post-mortem sink: when a controller is configured
// with a journal archive path, Verify writes every finalized invocation
// to the database so a failed run can be inspected after the process is
// gone. Nothing in the replay path depends on it; the core keeps no
// on-disk state by default.
//
// Ordering uses the journal sequence number, never timestamps, so the
// archive reproduces exactly what the verifier saw.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS invocations (
	seq           INTEGER NOT NULL,
	invocation_id TEXT    NOT NULL,
	command       TEXT    NOT NULL,
	args          TEXT    NOT NULL,
	stdin         TEXT    NOT NULL DEFAULT '',
	stdout        TEXT    NOT NULL DEFAULT '',
	stderr        TEXT    NOT NULL DEFAULT '',
	exit_code     INTEGER NOT NULL DEFAULT 0,
	matched       INTEGER NOT NULL DEFAULT 0,
	recorded_at   TEXT    NOT NULL,
	PRIMARY KEY (invocation_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_invocations_command ON invocations(command);
`

// InvocationRecord is one archived journal entry.
type InvocationRecord struct {
	Seq          int64
	InvocationID string
	Command      string
	Args         []string
	Stdin        string
	Stdout       string
	Stderr       string
	ExitCode     int
	Matched      bool
	Timestamp    time.Time
}

// Store is a journal archive database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the archive at path and applies the schema.
// SQLite allows a single writer; the connection pool is pinned to one
// connection to avoid SQLITE_BUSY churn.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal archive: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure journal archive: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// WriteInvocation appends one record. Idempotent per (invocation_id,
// seq) so re-archiving a journal does not duplicate rows.
func (s *Store) WriteInvocation(rec InvocationRecord) error {
	args, err := json.Marshal(rec.Args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}

	matched := 0
	if rec.Matched {
		matched = 1
	}
	recordedAt := rec.Timestamp
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err = s.db.Exec(`
		INSERT INTO invocations
			(seq, invocation_id, command, args, stdin, stdout, stderr, exit_code, matched, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (invocation_id, seq) DO NOTHING`,
		rec.Seq, rec.InvocationID, rec.Command, string(args),
		rec.Stdin, rec.Stdout, rec.Stderr, rec.ExitCode, matched,
		recordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write invocation %s: %w", rec.InvocationID, err)
	}
	return nil
}

// ReadInvocations returns every archived record in sequence order.
func (s *Store) ReadInvocations() ([]InvocationRecord, error) {
	rows, err := s.db.Query(`
		SELECT seq, invocation_id, command, args, stdin, stdout, stderr, exit_code, matched, recorded_at
		FROM invocations
		ORDER BY seq ASC, invocation_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	var records []InvocationRecord
	for rows.Next() {
		var rec InvocationRecord
		var argsJSON, recordedAt string
		var matched int
		if err := rows.Scan(
			&rec.Seq, &rec.InvocationID, &rec.Command, &argsJSON,
			&rec.Stdin, &rec.Stdout, &rec.Stderr, &rec.ExitCode, &matched, &recordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		if err := json.Unmarshal([]byte(argsJSON), &rec.Args); err != nil {
			return nil, fmt.Errorf("decode args for %s: %w", rec.InvocationID, err)
		}
		rec.Matched = matched == 1
		if ts, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			rec.Timestamp = ts
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
