// Package plans is a pure function mapping (dialect, schema) to prepared
// SQL text for the five named operations the core requires of a storage
// backend. It holds no state and performs no I/O; the manager calls Build
// once at construction and reuses the returned Set for the process lifetime.
//
// Bucket and bucket-boundary arithmetic for singleton throttling is done in
// Go (see internal/attorney) before InsertJob is called, so the plan text
// itself only ever needs a straightforward conditional insert.
package plans

import "fmt"

// Dialect names a supported SQL dialect.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Set holds the five prepared statements the manager executes.
//
// InsertJob argument order (both dialects): id, name, retryLimit,
// startAfter (absolute timestamp), expireInSeconds, data, singletonKey
// (nullable), singletonOn (nullable absolute bucket-boundary timestamp).
// The SQLite variant takes four more arguments for the WHERE clause, since
// the driver has no named-parameter reuse: singletonKey, name, singletonKey,
// singletonOn.
type Set struct {
	FetchNextJob string
	ExpireJob    string
	InsertJob    string
	CompleteJob  string
	CancelJob    string
}

// Build returns the prepared plan text for the given dialect and schema.
func Build(dialect Dialect, schema string) (Set, error) {
	if schema == "" {
		return Set{}, fmt.Errorf("plans: schema must not be empty")
	}
	switch dialect {
	case DialectPostgres:
		return buildPostgres(schema), nil
	case DialectSQLite:
		return buildSQLite(schema), nil
	default:
		return Set{}, fmt.Errorf("plans: unsupported dialect %q", dialect)
	}
}

func buildPostgres(schema string) Set {
	table := schema + ".job"
	return Set{
		FetchNextJob: fmt.Sprintf(`
WITH next AS (
	SELECT id FROM %s
	WHERE name = $1
	  AND state IN ('created', 'retry', 'expired')
	  AND start_after <= now()
	ORDER BY created_at ASC
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
UPDATE %s j SET state = 'active', started_at = now()
FROM next WHERE j.id = next.id
RETURNING j.id, j.name, j.data, j.state, j.retry_limit, j.retry_count,
          j.start_after, j.expire_in_seconds, j.singleton_key, j.singleton_on,
          j.created_at, j.started_at, j.completed_at;`, table, table),

		ExpireJob: fmt.Sprintf(`
UPDATE %s SET state = 'expired'
WHERE state = 'active' AND started_at IS NOT NULL
  AND extract(epoch FROM now()) >= extract(epoch FROM started_at) + expire_in_seconds
RETURNING id;`, table),

		InsertJob: fmt.Sprintf(`
INSERT INTO %s(id, name, retry_limit, start_after, expire_in_seconds, data,
               singleton_key, singleton_on, state, created_at)
SELECT $1, $2, $3, $4, $5, $6, $7, $8, 'created', now()
WHERE $7 IS NULL OR NOT EXISTS (
	SELECT 1 FROM %s
	WHERE name = $2 AND singleton_key = $7
	  AND state NOT IN ('completed', 'cancelled')
	  AND singleton_on = $8
)
RETURNING id;`, table, table),

		CompleteJob: fmt.Sprintf(`
UPDATE %s SET state = 'completed', completed_at = now()
WHERE id = $1 AND state NOT IN ('completed', 'cancelled')
RETURNING id;`, table),

		CancelJob: fmt.Sprintf(`
UPDATE %s SET state = 'cancelled', completed_at = now()
WHERE id = $1 AND state NOT IN ('completed', 'cancelled')
RETURNING id;`, table),
	}
}

func buildSQLite(schema string) Set {
	table := schema + "_job"
	return Set{
		FetchNextJob: fmt.Sprintf(`
UPDATE %s SET state = 'active', started_at = CURRENT_TIMESTAMP
WHERE id = (
	SELECT id FROM %s
	WHERE name = ?
	  AND state IN ('created', 'retry', 'expired')
	  AND datetime(start_after) <= CURRENT_TIMESTAMP
	ORDER BY created_at ASC
	LIMIT 1
)
RETURNING id, name, data, state, retry_limit, retry_count,
          start_after, expire_in_seconds, singleton_key, singleton_on,
          created_at, started_at, completed_at;`, table, table),

		ExpireJob: fmt.Sprintf(`
UPDATE %s SET state = 'expired'
WHERE state = 'active' AND started_at IS NOT NULL
  AND CAST(strftime('%%s', CURRENT_TIMESTAMP) AS INTEGER) >= CAST(strftime('%%s', started_at) AS INTEGER) + expire_in_seconds
RETURNING id;`, table),

		InsertJob: fmt.Sprintf(`
INSERT INTO %s(id, name, retry_limit, start_after, expire_in_seconds, data,
               singleton_key, singleton_on, state, created_at)
SELECT ?, ?, ?, ?, ?, ?, ?, ?, 'created', CURRENT_TIMESTAMP
WHERE ? IS NULL OR NOT EXISTS (
	SELECT 1 FROM %s
	WHERE name = ? AND singleton_key = ?
	  AND state NOT IN ('completed', 'cancelled')
	  AND singleton_on = ?
)
RETURNING id;`, table, table),

		CompleteJob: fmt.Sprintf(`
UPDATE %s SET state = 'completed', completed_at = CURRENT_TIMESTAMP
WHERE id = ? AND state NOT IN ('completed', 'cancelled')
RETURNING id;`, table),

		CancelJob: fmt.Sprintf(`
UPDATE %s SET state = 'cancelled', completed_at = CURRENT_TIMESTAMP
WHERE id = ? AND state NOT IN ('completed', 'cancelled')
RETURNING id;`, table),
	}
}
