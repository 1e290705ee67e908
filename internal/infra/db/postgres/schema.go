package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
)

// EnsureSchema creates the jobs table if it does not exist yet. Safe to call
// on every startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS jobs (
    id            TEXT PRIMARY KEY,
    kind          TEXT NOT NULL,
    user_id       BIGINT NOT NULL,
    payload       JSONB NOT NULL DEFAULT '{}'::jsonb,
    status        TEXT NOT NULL,
    attempt_count INT NOT NULL DEFAULT 0,
    result        TEXT NOT NULL DEFAULT '',
    last_error    TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_user_status_idx ON jobs (user_id, status);
CREATE INDEX IF NOT EXISTS jobs_kind_status_idx ON jobs (kind, status);`

	_, err := pool.Exec(ctx, ddl)
	return err
}
