// Package factory selects a store.Executor implementation from a DSN,
// adapted from the teacher's internal/store/factory package: same
// scheme-sniffing selection, repurposed to also ensure the job table
// exists before handing the Executor to the manager.
package factory

import (
	"context"
	"errors"
	"strings"

	"github.com/loykin/jobq/internal/store"
	pg "github.com/loykin/jobq/internal/store/postgres"
	sq "github.com/loykin/jobq/internal/store/sqlite"
)

// New selects a store.Executor based on dsn and ensures the job table for
// schema exists before returning it. Supported DSN forms:
//   - "postgres://..." or "postgresql://..." selects the Postgres executor
//   - "sqlite://<path>" or a bare filesystem path (including ":memory:")
//     selects the SQLite executor
func New(ctx context.Context, dsn, schema string) (store.Executor, error) {
	d := strings.TrimSpace(dsn)
	if d == "" {
		return nil, errors.New("factory: empty DSN")
	}
	ld := strings.ToLower(d)

	var exec store.Executor
	var err error
	switch {
	case strings.HasPrefix(ld, "postgres://"), strings.HasPrefix(ld, "postgresql://"):
		exec, err = pg.New(d)
	case strings.HasPrefix(ld, "sqlite://"):
		exec, err = sq.New(strings.TrimPrefix(d, "sqlite://"))
	default:
		exec, err = sq.New(d)
	}
	if err != nil {
		return nil, err
	}

	type schemaEnsurer interface {
		EnsureSchema(ctx context.Context, schema string) error
	}
	if ensurer, ok := exec.(schemaEnsurer); ok {
		if err := ensurer.EnsureSchema(ctx, schema); err != nil {
			_ = exec.Close()
			return nil, err
		}
	}
	return exec, nil
}
