// Package progress persists job progress in a local SQLite database keyed by
// job id. It is the only state shared between jobs.
package progress

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

	"github.com/forPelevin/hlshorts/internal/types"
)

// ErrNotFound is returned by Get for unknown job ids.
var ErrNotFound = errors.New("progress: job not found")

// Store manages progress rows backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	// updatedAtLayout is fixed width so updated_at orders lexically.
	updatedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_progress (
    job_id     TEXT PRIMARY KEY,
    input      TEXT NOT NULL,
    status     TEXT NOT NULL,
    stage      TEXT NOT NULL DEFAULT '',
    done       INTEGER NOT NULL DEFAULT 0,
    total      INTEGER NOT NULL DEFAULT 0,
    message    TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_progress_updated ON job_progress(updated_at);
`

// Open initializes or connects to the progress database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Store{db: db, path: path}
	if err := retryOnBusy(context.Background(), func() error {
		_, err := db.Exec(schema)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put inserts or replaces the row for p.JobID. A zero UpdatedAt is set to now.
func (s *Store) Put(ctx context.Context, p types.Progress) error {
	if strings.TrimSpace(p.JobID) == "" {
		return errors.New("progress: empty job id")
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO job_progress (job_id, input, status, stage, done, total, message, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(job_id) DO UPDATE SET
    input = excluded.input,
    status = excluded.status,
    stage = excluded.stage,
    done = excluded.done,
    total = excluded.total,
    message = excluded.message,
    updated_at = excluded.updated_at`,
			p.JobID, p.Input, string(p.Status), p.Stage, p.Done, p.Total, p.Message,
			p.UpdatedAt.UTC().Format(updatedAtLayout),
		)
		if err != nil {
			return fmt.Errorf("put progress %s: %w", p.JobID, err)
		}
		return nil
	})
}

func (s *Store) Get(ctx context.Context, jobID string) (types.Progress, error) {
	var p types.Progress
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `
SELECT job_id, input, status, stage, done, total, message, updated_at
FROM job_progress WHERE job_id = ?`, jobID)
		var scanErr error
		p, scanErr = scanProgress(row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return types.Progress{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return types.Progress{}, fmt.Errorf("get progress %s: %w", jobID, err)
	}
	return p, nil
}

// List returns the most recently updated jobs first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]types.Progress, error) {
	if limit <= 0 {
		limit = -1
	}
	var out []types.Progress
	err := retryOnBusy(ctx, func() error {
		out = out[:0]
		rows, err := s.db.QueryContext(ctx, `
SELECT job_id, input, status, stage, done, total, message, updated_at
FROM job_progress ORDER BY updated_at DESC, job_id LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			p, err := scanProgress(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProgress(row scanner) (types.Progress, error) {
	var (
		p       types.Progress
		status  string
		updated string
	)
	if err := row.Scan(&p.JobID, &p.Input, &status, &p.Stage, &p.Done, &p.Total, &p.Message, &updated); err != nil {
		return types.Progress{}, err
	}
	p.Status = types.JobStatus(status)
	ts, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return types.Progress{}, fmt.Errorf("parse updated_at %q: %w", updated, err)
	}
	p.UpdatedAt = ts
	return p, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
