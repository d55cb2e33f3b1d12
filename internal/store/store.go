// Package store keeps finished runs and their step provenance in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/temirov/pktables/internal/pipeline"
)

const (
	driverName = "sqlite"
	memoryPath = ":memory:"

	schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	pipeline     TEXT NOT NULL,
	input        TEXT NOT NULL,
	started_at   INTEGER NOT NULL,
	finished_at  INTEGER NOT NULL,
	success      INTEGER NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	row_count    INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	output       TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS steps (
	run_id            TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position          INTEGER NOT NULL,
	step              TEXT NOT NULL,
	success           INTEGER NOT NULL,
	skipped           INTEGER NOT NULL,
	attempts          INTEGER NOT NULL,
	token_usage       INTEGER NOT NULL,
	truncated         INTEGER NOT NULL,
	raw_reasoning     TEXT NOT NULL,
	cleaned_reasoning TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);
`
)

var ErrRunNotFound = errors.New("run not found")

// RunRecord is the summary row of one run.
type RunRecord struct {
	ID          string
	Pipeline    string
	Input       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Success     bool
	Error       string
	RowCount    int
	TotalTokens int
	// Output is the final table as markdown; empty for failed runs.
	Output string
}

type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if path == memoryPath {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 10000"}
	if path != memoryPath {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, pragma := range append(pragmas, schema) {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: exec %q: %w", firstLine(pragma), err)
		}
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveRun writes the run and its provenance records in one transaction.
func (s *Store) SaveRun(ctx context.Context, run RunRecord, records []pipeline.Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, pipeline, input, started_at, finished_at, success, error, row_count, total_tokens, output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Pipeline, run.Input, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		run.Success, run.Error, run.RowCount, run.TotalTokens, run.Output)
	if err != nil {
		return fmt.Errorf("store: insert run %s: %w", run.ID, err)
	}

	statement, err := tx.PrepareContext(ctx, `INSERT INTO steps
		(run_id, position, step, success, skipped, attempts, token_usage, truncated, raw_reasoning, cleaned_reasoning)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare steps: %w", err)
	}
	defer func() { _ = statement.Close() }()

	for position, record := range records {
		_, err = statement.ExecContext(ctx, run.ID, position, record.Step, record.Success, record.Skipped,
			record.Attempts, record.TokenUsage, record.Truncated, record.RawReasoning, record.CleanedReasoning)
		if err != nil {
			return fmt.Errorf("store: insert step %s: %w", record.Step, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Runs lists the most recent runs first. limit <= 0 lists every run.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `SELECT id, pipeline, input, started_at, finished_at, success, error, row_count, total_tokens, output
		FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Store) Run(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, pipeline, input, started_at, finished_at, success, error, row_count, total_tokens, output
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// Steps returns the provenance of a run in step order.
func (s *Store) Steps(ctx context.Context, runID string) ([]pipeline.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT step, success, skipped, attempts, token_usage, truncated, raw_reasoning, cleaned_reasoning
		FROM steps WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: query steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []pipeline.Record
	for rows.Next() {
		var record pipeline.Record
		if err := rows.Scan(&record.Step, &record.Success, &record.Skipped, &record.Attempts,
			&record.TokenUsage, &record.Truncated, &record.RawReasoning, &record.CleanedReasoning); err != nil {
			return nil, fmt.Errorf("store: scan step: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var run RunRecord
	var startedAt, finishedAt int64
	err := row.Scan(&run.ID, &run.Pipeline, &run.Input, &startedAt, &finishedAt,
		&run.Success, &run.Error, &run.RowCount, &run.TotalTokens, &run.Output)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, err
		}
		return RunRecord{}, fmt.Errorf("store: scan run: %w", err)
	}
	run.StartedAt = time.UnixMilli(startedAt).UTC()
	run.FinishedAt = time.UnixMilli(finishedAt).UTC()
	return run, nil
}

func firstLine(statement string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(statement), "\n")
	return line
}
