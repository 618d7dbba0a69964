// Package store keeps a SQLite history of decode runs so benchmark results
// can be compared across invocations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one recorded invocation.
type Run struct {
	ID        int64
	Model     string
	Method    string
	StartedAt time.Time
}

// Transcript is one decoded file inside a run. Position preserves the
// submission order.
type Transcript struct {
	Position int
	Source   string
	Text     string
}

// Store wraps the SQLite-backed run history.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Open initializes the history database, creating parent directories and
// the schema as needed.
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    model TEXT NOT NULL,
    method TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS transcripts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    source TEXT NOT NULL,
    text TEXT NOT NULL,
    FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_transcripts_run_position ON transcripts(run_id, position);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun writes one run and its transcripts atomically, returning the
// run id.
func (s *Store) RecordRun(ctx context.Context, model, method string, transcripts []Transcript) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var res sql.Result
	res, err = tx.ExecContext(ctx,
		`INSERT INTO runs(model, method, started_at) VALUES(?, ?, ?)`,
		model, method, s.clock().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, tr := range transcripts {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO transcripts(run_id, position, source, text) VALUES(?, ?, ?, ?)`,
			runID, i, tr.Source, tr.Text)
		if err != nil {
			return 0, err
		}
	}
	err = tx.Commit()
	return runID, err
}

// ListRunTranscripts returns a run's transcripts in submission order.
func (s *Store) ListRunTranscripts(ctx context.Context, runID int64) ([]Transcript, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, source, text FROM transcripts WHERE run_id = ? ORDER BY position ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transcripts []Transcript
	for rows.Next() {
		var tr Transcript
		if err := rows.Scan(&tr.Position, &tr.Source, &tr.Text); err != nil {
			return nil, err
		}
		transcripts = append(transcripts, tr)
	}
	return transcripts, rows.Err()
}

// ListRuns returns up to limit runs, most recent first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model, method, started_at FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started string
		if err := rows.Scan(&r.ID, &r.Model, &r.Method, &started); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, started); err == nil {
			r.StartedAt = ts
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
