package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/loykin/jobq/internal/plans"
)

// startPostgresContainer starts a PostgreSQL container for tests and
// returns a DSN suitable for the pgx stdlib driver. It skips the test if
// Docker is unavailable.
func startPostgresContainer(t *testing.T) (dsn string, terminate func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
	)
	if err != nil {
		cancel()
		t.Skipf("failed to start postgres container: %v", err)
		return "", nil
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("failed to get host info: %v", err)
		return "", nil
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("failed to get mapped port: %v", err)
		return "", nil
	}

	dsn = fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())
	terminate = func() {
		_ = container.Terminate(ctx)
		cancel()
	}
	return dsn, terminate
}

func waitForPostgres(t *testing.T, dsn string) {
	t.Helper()
	deadline := time.Now().Add(45 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				_ = db.Close()
				cancel()
				return
			}
			_ = db.Close()
		}
		cancel()
		if time.Now().After(deadline) {
			t.Fatalf("postgres not ready in time: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func TestPostgresInsertFetchCompleteRoundTrip(t *testing.T) {
	dsn, terminate := startPostgresContainer(t)
	waitForPostgres(t, dsn)
	defer func() {
		if terminate != nil {
			terminate()
		}
	}()

	db, err := New(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	if err := db.EnsureSchema(ctx, "app"); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := db.EnsureSchema(ctx, "app"); err != nil { // idempotent
		t.Fatalf("ensure schema 2: %v", err)
	}

	set, err := plans.Build(plans.DialectPostgres, "app")
	if err != nil {
		t.Fatalf("build plans: %v", err)
	}

	now := time.Now().UTC()
	res, err := db.Exec(ctx, set.InsertJob,
		"job-1", "emails", 0, now, float64(900), []byte(`{"to":"a@b.com"}`), nil, nil)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if res.RowCount != 1 {
		t.Fatalf("expected 1 inserted row, got %d", res.RowCount)
	}

	fetched, err := db.Exec(ctx, set.FetchNextJob, "emails")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if fetched.RowCount != 1 || len(fetched.Jobs) != 1 {
		t.Fatalf("expected one claimed job, got rowcount=%d jobs=%d", fetched.RowCount, len(fetched.Jobs))
	}
	job := fetched.Jobs[0]
	if job.ID != "job-1" || job.StartedAt == nil {
		t.Fatalf("unexpected claimed job: %+v", job)
	}

	empty, err := db.Exec(ctx, set.FetchNextJob, "emails")
	if err != nil {
		t.Fatalf("fetch again: %v", err)
	}
	if empty.RowCount != 0 {
		t.Fatalf("expected no further eligible rows, got %d", empty.RowCount)
	}

	done, err := db.Exec(ctx, set.CompleteJob, job.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.RowCount != 1 {
		t.Fatalf("expected 1 completed row, got %d", done.RowCount)
	}
}

func TestPostgresExpireSweepsOverdueActiveJobs(t *testing.T) {
	dsn, terminate := startPostgresContainer(t)
	waitForPostgres(t, dsn)
	defer func() {
		if terminate != nil {
			terminate()
		}
	}()

	db, err := New(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	if err := db.EnsureSchema(ctx, "app"); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	set, err := plans.Build(plans.DialectPostgres, "app")
	if err != nil {
		t.Fatalf("build plans: %v", err)
	}

	now := time.Now().UTC()
	if _, err := db.Exec(ctx, set.InsertJob, "job-2", "reports", 0, now, float64(0), []byte(`{}`), nil, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.Exec(ctx, set.FetchNextJob, "reports"); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	time.Sleep(1100 * time.Millisecond)

	expired, err := db.Exec(ctx, set.ExpireJob)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if expired.RowCount != 1 {
		t.Fatalf("expected 1 expired row, got %d", expired.RowCount)
	}
}
