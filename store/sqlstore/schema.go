package sqlstore

import (
	"context"
	"fmt"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

func blobType(driver string) string {
	if driver == DriverPostgres {
		return "BYTEA"
	}
	return "BLOB"
}

func (s *Store) ensureSchema(ctx context.Context) error {
	blob := blobType(s.db.DriverName())
	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		job_key BIGINT PRIMARY KEY,
		job_type TEXT NOT NULL,
		state TEXT NOT NULL,
		deadline BIGINT NOT NULL DEFAULT 0,
		recurring_time BIGINT NOT NULL DEFAULT 0,
		tenant_id TEXT NOT NULL DEFAULT '',
		body %s NOT NULL
	)`, s.jobsTable, blob),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_state_type_idx ON %s (state, job_type, job_key)`, s.jobsTable, s.jobsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_state_deadline_idx ON %s (state, deadline, job_key)`, s.jobsTable, s.jobsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		incident_key BIGINT PRIMARY KEY,
		job_key BIGINT NOT NULL,
		error_type TEXT NOT NULL,
		body %s NOT NULL
	)`, s.incidentsTable, blob),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_job_idx ON %s (job_key, incident_key)`, s.incidentsTable, s.incidentsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name TEXT PRIMARY KEY,
		value BIGINT NOT NULL
	)`, s.sequenceTable),
		s.db.Rebind(fmt.Sprintf(`INSERT INTO %s (name, value) VALUES (?, 0) ON CONFLICT (name) DO NOTHING`, s.sequenceTable)),
	}
	for i, stmt := range ddl {
		var err error
		if i == len(ddl)-1 {
			_, err = s.db.ExecContext(ctx, stmt, keySequence)
		} else {
			_, err = s.db.ExecContext(ctx, stmt)
		}
		if err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
