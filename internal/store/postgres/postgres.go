// Package postgres implements store.Executor over PostgreSQL using the
// pgx stdlib driver, adapted from the teacher's internal/store/postgres
// package: same pooled *sql.DB-over-pgx shape, same EnsureSchema idiom,
// repurposed to back the job queue's five named plans instead of a
// process_state table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/jobq/internal/plans"
	"github.com/loykin/jobq/internal/store"
)

// DB implements store.Executor against a PostgreSQL database.
type DB struct {
	db *sql.DB
}

// New opens a pooled connection to dsn (a postgres:// or postgresql:// URL).
func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	d.SetMaxOpenConns(25)
	d.SetMaxIdleConns(5)
	d.SetConnMaxLifetime(5 * time.Minute)
	return &DB{db: d}, nil
}

// Dialect reports the plans dialect this Executor's plan text must use.
func (p *DB) Dialect() string { return string(plans.DialectPostgres) }

// Close closes the underlying connection pool.
func (p *DB) Close() error { return p.db.Close() }

// EnsureSchema creates the job table for schema if it does not already
// exist. Schema migration proper is out of scope for the core (the core
// never calls this); it exists so the module is runnable end to end.
func (p *DB) EnsureSchema(ctx context.Context, schema string) error {
	stmt := fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %s;
CREATE TABLE IF NOT EXISTS %s.job(
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	data BYTEA,
	state TEXT NOT NULL,
	retry_limit INTEGER NOT NULL DEFAULT 0,
	retry_count INTEGER NOT NULL DEFAULT 0,
	start_after TIMESTAMPTZ NOT NULL,
	expire_in_seconds DOUBLE PRECISION NOT NULL,
	singleton_key TEXT,
	singleton_on TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS %s_job_fetch_idx ON %s.job(name, state, start_after);`,
		schema, schema, schema, schema)
	_, err := p.db.ExecContext(ctx, stmt)
	return err
}

// Exec runs plan against the database and reports the affected row count
// or, for fetchNextJob, the claimed row.
func (p *DB) Exec(ctx context.Context, plan string, args ...any) (store.Result, error) {
	rows, err := p.db.QueryContext(ctx, plan, args...)
	if err != nil {
		return store.Result{}, fmt.Errorf("postgres: exec: %w", err)
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
			return store.Result{}, fmt.Errorf("postgres: scan: %w", err)
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
