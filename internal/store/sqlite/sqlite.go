// Package sqlite implements store.Executor over SQLite using the
// modernc.org/sqlite driver (CGO-free), adapted from the teacher's
// internal/store/sqlite package: same DSN-as-path and :memory:
// single-connection idiom, repurposed to back the job queue's five
// named plans instead of a process_state table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/jobq/internal/plans"
	"github.com/loykin/jobq/internal/store"
)

// DB implements store.Executor against a SQLite database. path is a
// filesystem path to the database file; use ":memory:" for in-memory.
type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("sqlite: empty path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// A :memory: database is private to its connection; pooling more than
	// one connection would silently scatter state across isolated DBs.
	if p == ":memory:" {
		d.SetMaxOpenConns(1)
	}
	if _, err := d.Exec("PRAGMA busy_timeout=3000;"); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("sqlite: busy_timeout: %w", err)
	}
	return &DB{db: d}, nil
}

// Dialect reports the plans dialect this Executor's plan text must use.
func (s *DB) Dialect() string { return string(plans.DialectSQLite) }

// Close closes the underlying database handle.
func (s *DB) Close() error { return s.db.Close() }

// EnsureSchema creates the job table for schema if it does not already
// exist. Schema migration proper is out of scope for the core (the core
// never calls this); it exists so the module is runnable end to end.
func (s *DB) EnsureSchema(ctx context.Context, schema string) error {
	stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s_job(
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	data BLOB,
	state TEXT NOT NULL,
	retry_limit INTEGER NOT NULL DEFAULT 0,
	retry_count INTEGER NOT NULL DEFAULT 0,
	start_after TIMESTAMP NOT NULL,
	expire_in_seconds REAL NOT NULL,
	singleton_key TEXT,
	singleton_on TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	started_at TIMESTAMP,
	completed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS %s_job_fetch_idx ON %s_job(name, state, start_after);`,
		schema, schema, schema)
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

// Exec runs plan against the database and reports the affected row count
// or, for fetchNextJob, the claimed row.
func (s *DB) Exec(ctx context.Context, plan string, args ...any) (store.Result, error) {
	rows, err := s.db.QueryContext(ctx, plan, args...)
	if err != nil {
		return store.Result{}, fmt.Errorf("sqlite: exec: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return store.Result{}, err
	}
	hasJobColumns := len(cols) > 1 // plans returning only "id" are modifying plans

	var jobs []store.Job
	var rowCount int64
	for rows.Next() {
		rowCount++
		if !hasJobColumns {
			continue
		}
		var j store.Job
		var singletonKey sql.NullString
		var singletonOn sql.NullTime
		var startedAt sql.NullTime
		var completedAt sql.NullTime
		var expireSeconds float64
		if err := rows.Scan(&j.ID, &j.Name, &j.Data, &j.State, &j.RetryLimit, &j.RetryCount,
			&j.StartAfter, &expireSeconds, &singletonKey, &singletonOn,
			&j.CreatedAt, &startedAt, &completedAt); err != nil {
			return store.Result{}, fmt.Errorf("sqlite: scan: %w", err)
		}
		j.ExpireIn = time.Duration(expireSeconds * float64(time.Second))
		if singletonKey.Valid {
			j.SingletonKey = singletonKey.String
		}
		if singletonOn.Valid {
			t := singletonOn.Time
			j.SingletonOn = &t
		}
		if startedAt.Valid {
			t := startedAt.Time
			j.StartedAt = &t
		}
		if completedAt.Valid {
			t := completedAt.Time
			j.CompletedAt = &t
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return store.Result{}, err
	}
	return store.Result{RowCount: rowCount, Jobs: jobs}, nil
}
